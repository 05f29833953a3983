package netting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

var (
	march = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	june  = time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
)

func future(symbol string, exp time.Time, pos, mult int) *model.Position {
	return &model.Position{Account: "A", Symbol: symbol, UnderlyingSymbol: "SPX", IsFuture: true,
		ExpirationDate: exp, CurrentPosition: pos, Multiplier: mult}
}

func option(symbol string, typ enum.OptionType, exp time.Time, strike float64, pos, mult int) *model.Position {
	return &model.Position{Account: "A", Symbol: symbol, UnderlyingSymbol: "SPX", IsOption: true, OptionType: typ,
		ExpirationDate: exp, StrikePrice: strike, CurrentPosition: pos, Multiplier: mult}
}

func TestNetFuturePutCall(t *testing.T) {
	fut := future("ESH4", march, 10, 50)
	put := option("SPX P4000", enum.OptionPut, march, 4000, 6, 100)
	call := option("SPX C3900", enum.OptionCall, march, 3900, -4, 100)
	rows := []*model.Position{fut, put, call}

	before := Exposure(rows)
	require.NoError(t, Net(rows))

	assert.Equal(t, -8, fut.NettingAdjustment)
	assert.Equal(t, -4, put.NettingAdjustment)
	assert.Equal(t, 4, call.NettingAdjustment)

	assert.Equal(t, 100, fut.NetPosition()*fut.Multiplier)
	assert.Equal(t, 200, put.NetPosition()*put.Multiplier)
	assert.Equal(t, 0, call.NetPosition()*call.Multiplier)

	after := Exposure(rows)
	assert.Equal(t, int64(1500), before)
	assert.Equal(t, int64(300), after)
	assert.Less(t, after, before)
	assert.Equal(t, before, GrossExposure(rows))
}

func TestNetTruncatesRemainder(t *testing.T) {
	fut := future("ESH4", march, 3, 50)
	put := option("SPX P4000", enum.OptionPut, march, 4000, 2, 100)
	call := option("SPX C4000", enum.OptionCall, march, 4000, -1, 130)
	rows := []*model.Position{fut, put, call}

	require.NoError(t, Net(rows))

	// overlap is 130 units: 130/50 and 130/100 both truncate
	assert.Equal(t, -2, fut.NettingAdjustment)
	assert.Equal(t, -1, put.NettingAdjustment)
	assert.Equal(t, 1, call.NettingAdjustment)
}

func TestNetWalksCallsFromHighestStrike(t *testing.T) {
	fut := future("ESH4", march, 10, 50)
	put := option("SPX P100", enum.OptionPut, march, 100, 10, 100)
	call95 := option("SPX C95", enum.OptionCall, march, 95, -3, 100)
	call90 := option("SPX C90", enum.OptionCall, march, 90, -5, 100)
	call105 := option("SPX C105", enum.OptionCall, march, 105, -9, 100)
	longCall := option("SPX C80", enum.OptionCall, march, 80, 2, 100)
	rows := []*model.Position{call90, longCall, put, call105, fut, call95}

	require.NoError(t, Net(rows))

	assert.Equal(t, -10, fut.NettingAdjustment)
	assert.Equal(t, -5, put.NettingAdjustment)
	assert.Equal(t, 3, call95.NettingAdjustment)
	assert.Equal(t, 2, call90.NettingAdjustment)
	assert.Zero(t, call105.NettingAdjustment)
	assert.Zero(t, longCall.NettingAdjustment)
}

func TestNetIgnoresOtherExpirations(t *testing.T) {
	fut := future("ESM4", june, 10, 50)
	put := option("SPX P4000 MAR", enum.OptionPut, march, 4000, 6, 100)
	call := option("SPX C3900 MAR", enum.OptionCall, march, 3900, -4, 100)
	rows := []*model.Position{fut, put, call}

	require.NoError(t, Net(rows))
	for _, p := range rows {
		assert.Zero(t, p.NettingAdjustment, p.Symbol)
	}
}

func TestNetFuturesInExpirationOrder(t *testing.T) {
	juneFut := future("ESM4", june, 4, 50)
	marchFut := future("ESH4", march, 4, 50)
	put := option("SPX P4000", enum.OptionPut, march, 4000, 1, 100)
	call := option("SPX C3900", enum.OptionCall, march, 3900, -1, 100)
	rows := []*model.Position{juneFut, marchFut, put, call}

	require.NoError(t, Net(rows))
	assert.Equal(t, -2, marchFut.NettingAdjustment)
	assert.Zero(t, juneFut.NettingAdjustment)
	assert.Equal(t, -1, put.NettingAdjustment)
	assert.Equal(t, 1, call.NettingAdjustment)
}

func TestNetNoCallsMeansNoNetting(t *testing.T) {
	fut := future("ESH4", march, 10, 50)
	put := option("SPX P4000", enum.OptionPut, march, 4000, 6, 100)
	rows := []*model.Position{fut, put}

	require.NoError(t, Net(rows))
	assert.Zero(t, fut.NettingAdjustment)
	assert.Zero(t, put.NettingAdjustment)
}

func TestNetResetsStaleAdjustments(t *testing.T) {
	put := option("SPX P4000", enum.OptionPut, march, 4000, 6, 100)
	put.NettingAdjustment = -3
	call := option("SPX C3900", enum.OptionCall, march, 3900, -4, 100)
	call.NettingAdjustment = 2

	require.NoError(t, Net([]*model.Position{put, call}))
	assert.Zero(t, put.NettingAdjustment)
	assert.Zero(t, call.NettingAdjustment)
}

func TestNetFailureResetsUnderlying(t *testing.T) {
	fut := future("ESH4", march, 10, 50)
	put := option("SPX P4000", enum.OptionPut, march, 4000, 6, 100)
	broken := option("SPX C3990", enum.OptionCall, march, 3990, -2, 0)
	call := option("SPX C3900", enum.OptionCall, march, 3900, -4, 100)
	rows := []*model.Position{fut, put, broken, call}

	err := Net(rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrNettingZeroMultiplier)
	for _, p := range rows {
		assert.Zero(t, p.NettingAdjustment, p.Symbol)
	}
}

func TestNetIsRepeatable(t *testing.T) {
	fut := future("ESH4", march, 10, 50)
	put := option("SPX P4000", enum.OptionPut, march, 4000, 6, 100)
	call := option("SPX C3900", enum.OptionCall, march, 3900, -4, 100)
	rows := []*model.Position{fut, put, call}

	require.NoError(t, Net(rows))
	require.NoError(t, Net(rows))
	assert.Equal(t, -8, fut.NettingAdjustment)
	assert.Equal(t, -4, put.NettingAdjustment)
	assert.Equal(t, 4, call.NettingAdjustment)
}

func TestGroupByUnderlying(t *testing.T) {
	a := option("SPX P1", enum.OptionPut, march, 1, 1, 100)
	b := &model.Position{Symbol: "NDX P1", UnderlyingSymbol: "NDX", IsOption: true}
	c := &model.Position{Symbol: "IBM", IsStock: true}

	groups := GroupByUnderlying([]*model.Position{a, b, c})
	require.Len(t, groups, 2)
	assert.Equal(t, []*model.Position{a}, groups["SPX"])
	assert.Equal(t, []*model.Position{b}, groups["NDX"])
}
