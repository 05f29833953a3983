package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDividendsReceived(t *testing.T) {
	trades := []Trade{
		{TradeType: TradeTypeDividend, ChangeInCost: decimal.RequireFromString("-12.50")},
		{TradeType: "Buy", ChangeInCost: decimal.RequireFromString("1000")},
		{TradeType: TradeTypeDividend, ChangeInCost: decimal.RequireFromString("-7.25")},
	}
	assert.True(t, decimal.RequireFromString("19.75").Equal(DividendsReceived(trades)))
	assert.True(t, DividendsReceived(nil).IsZero())
}

func TestAccountDataBenchmarkSymbol(t *testing.T) {
	assert.Equal(t, "SPX", AccountData{Benchmark: "SPXT"}.BenchmarkSymbol())
	assert.Equal(t, "NDX", AccountData{Benchmark: "NDX"}.BenchmarkSymbol())
	assert.Equal(t, "", AccountData{}.BenchmarkSymbol())
}

func TestAccountDataAdjustedDelta(t *testing.T) {
	acct := AccountData{
		MinDelta:                 -10,
		MaxDelta:                 10,
		LowerAdjustmentPerMinute: 0.01,
		UpperAdjustmentPerMinute: 0.02,
		StartOfDay:               time.Date(2000, 1, 1, 9, 30, 0, 0, time.UTC),
		MinutesInDay:             390,
	}

	testCases := []struct {
		desc    string
		now     time.Time
		wantMin float64
		wantMax float64
	}{
		{
			desc:    "before open",
			now:     time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
			wantMin: -10,
			wantMax: 10,
		},
		{
			desc:    "one hour in",
			now:     time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
			wantMin: -9.4,
			wantMax: 8.8,
		},
		{
			desc:    "capped after the close",
			now:     time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC),
			wantMin: -6.1,
			wantMax: 2.2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.InDelta(t, tc.wantMin, acct.AdjustedMinDelta(tc.now), 1e-9)
			assert.InDelta(t, tc.wantMax, acct.AdjustedMaxDelta(tc.now), 1e-9)
		})
	}
}

func TestRefreshDeltaAny(t *testing.T) {
	assert.False(t, RefreshDelta{}.Any())
	assert.True(t, RefreshDelta{SnapshotIDs: true}.Any())
	assert.True(t, FullRefresh().Any())
}
