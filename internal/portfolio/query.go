package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/netting"
)

// Positions returns a copy of the position table in insertion order.
func (c *Cache) Positions() []model.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	return out
}

func (c *Cache) PositionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.positions)
}

// Position returns a copy of the row for symbol.
func (c *Cache) Position(symbol string) (model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.positionIndex[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Indices returns a copy of the index constituent table.
func (c *Cache) Indices() []model.IndexRow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.IndexRow, 0, len(c.indices))
	for _, r := range c.indices {
		out = append(out, *r)
	}
	return out
}

// Benchmark returns a copy of the benchmark row, if the account has one.
func (c *Cache) Benchmark() (model.IndexRow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.benchmark == nil {
		return model.IndexRow{}, false
	}
	return *c.benchmark, true
}

func (c *Cache) AccountData() (model.AccountData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountData, c.hasAccount
}

// Trades returns today's trades of the account.
func (c *Cache) Trades() []model.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Trade, len(c.trades))
	copy(out, c.trades)
	return out
}

// NumberOfTrades counts today's trades, dividend bookings excluded.
func (c *Cache) NumberOfTrades() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, t := range c.trades {
		if t.TradeType != model.TradeTypeDividend {
			n++
		}
	}
	return n
}

func (c *Cache) DividendsReceived() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dividends
}

func (c *Cache) SnapshotIDs() []model.SnapshotID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.SnapshotID, len(c.snapshotIDs))
	copy(out, c.snapshotIDs)
	return out
}

// HasSnapshot reports whether a snapshot of typ is already stored.
func (c *Cache) HasSnapshot(typ enum.SnapshotType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.snapshotIDs {
		if id.SnapshotType == typ {
			return true
		}
	}
	return false
}

// CurrentPrice looks symbol up in the positions, then the index rows, then
// the benchmark.
func (c *Cache) CurrentPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.positionIndex[symbol]; ok {
		return p.CurrentPrice(), true
	}
	if r, ok := c.indexIndex[symbol]; ok {
		return r.CurrentPrice(), true
	}
	if c.benchmark != nil && c.benchmark.Symbol == symbol {
		return c.benchmark.CurrentPrice(), true
	}
	return 0, false
}

// Exposure returns the gross and netted exposure of the position table in
// underlying units.
func (c *Cache) Exposure() (gross, netted int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return netting.GrossExposure(c.positions), netting.Exposure(c.positions)
}

// LastQuoteTime is when a tick last changed a row.
func (c *Cache) LastQuoteTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastQuoteTime
}

// QuoteServiceStoppedTime is when the subscriber last stopped. It is zero
// while subscribed.
func (c *Cache) QuoteServiceStoppedTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stoppedTime
}
