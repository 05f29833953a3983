package quotefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
)

func TestSubscriptionsRefCount(t *testing.T) {
	subs := newSubscriptions()
	position, benchmark := &model.Quote{}, &model.Quote{}

	assert.True(t, subs.Add("SPY", enum.InstrumentStock, position))
	assert.False(t, subs.Add("SPY", enum.InstrumentStock, benchmark))
	assert.False(t, subs.Add("SPY", enum.InstrumentStock, benchmark))
	assert.Equal(t, []any{position, benchmark}, subs.Handles("SPY"))
	assert.Equal(t, 1, subs.Count())

	kind, last := subs.Remove("SPY", benchmark)
	assert.Equal(t, enum.InstrumentStock, kind)
	assert.False(t, last)
	assert.Equal(t, []any{position}, subs.Handles("SPY"))

	_, last = subs.Remove("SPY", benchmark)
	assert.False(t, last)

	_, last = subs.Remove("SPY", position)
	assert.True(t, last)
	assert.Nil(t, subs.Handles("SPY"))
	assert.Zero(t, subs.Count())

	_, last = subs.Remove("SPY", position)
	assert.False(t, last)
}

func TestSubscriptionsHandlesIsACopy(t *testing.T) {
	subs := newSubscriptions()
	q := &model.Quote{}
	subs.Add("IBM", enum.InstrumentStock, q)

	handles := subs.Handles("IBM")
	handles[0] = nil
	assert.Equal(t, []any{q}, subs.Handles("IBM"))
}
