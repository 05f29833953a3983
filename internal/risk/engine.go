// Package risk checks an account's delta against its time-decayed band.
package risk

import (
	"math"
	"time"

	"positionmonitor/internal/model"
)

// Level classifies a delta against a band.
type Level uint8

const (
	LevelUnknown Level = iota
	LevelBelow
	LevelWithin
	LevelAbove
)

func (l Level) String() string {
	switch l {
	case LevelBelow:
		return "Below"
	case LevelWithin:
		return "Within"
	case LevelAbove:
		return "Above"
	default:
		return "Unknown"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Band is the allowed delta range at a point in time.
type Band struct {
	Min float64   `json:"min"`
	Max float64   `json:"max"`
	At  time.Time `json:"at"`
}

// BandAt applies the account's per-minute adjustments to its delta limits.
func BandAt(acct model.AccountData, now time.Time) Band {
	return Band{
		Min: acct.AdjustedMinDelta(now),
		Max: acct.AdjustedMaxDelta(now),
		At:  now,
	}
}

// Classify places pct relative to the band. Bounds are inclusive.
func (b Band) Classify(pct float64) Level {
	switch {
	case pct < b.Min:
		return LevelBelow
	case pct > b.Max:
		return LevelAbove
	default:
		return LevelWithin
	}
}

// Portfolio is the part of a portfolio cache the engine reads.
type Portfolio interface {
	Account() string
	Positions() []model.Position
	AccountData() (model.AccountData, bool)
	CurrentPrice(symbol string) (float64, bool)
}

// Assessment is the result of evaluating one account.
type Assessment struct {
	Account      string  `json:"account"`
	DeltaPercent float64 `json:"deltaPercent"`
	Band         Band    `json:"band"`
	Level        Level   `json:"level"`
}

// Engine evaluates accounts against their delta bands.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine; a nil now uses time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Evaluate reports the netted delta percent of p and where it sits in the
// account's band. ok is false without account data or a non-zero market value.
func (e *Engine) Evaluate(p Portfolio) (Assessment, bool) {
	acct, ok := p.AccountData()
	if !ok {
		return Assessment{}, false
	}
	pct, ok := DeltaPercent(p)
	if !ok {
		return Assessment{}, false
	}
	band := BandAt(acct, e.now())
	return Assessment{
		Account:      p.Account(),
		DeltaPercent: pct,
		Band:         band,
		Level:        band.Classify(pct),
	}, true
}

// DeltaPercent is the netted dollar delta of the portfolio as a percent of
// its gross market value. Stocks and futures carry a delta of one; options
// use their quoted delta against the underlying's price.
func DeltaPercent(p Portfolio) (float64, bool) {
	var dollarDelta, grossValue float64
	for _, row := range p.Positions() {
		qty := float64(row.NetPosition())
		if qty == 0 {
			continue
		}
		price := row.CurrentPrice()
		grossValue += math.Abs(qty * row.PriceMultiplier * price)

		underlyingPrice := price
		delta := 1.0
		if row.IsOption {
			delta = row.Greeks.Delta
			underlyingPrice = 0
			if v, ok := p.CurrentPrice(row.UnderlyingSymbol); ok {
				underlyingPrice = v
			}
		}
		dollarDelta += qty * float64(row.Multiplier) * delta * underlyingPrice
	}
	if grossValue == 0 {
		return 0, false
	}
	return 100 * dollarDelta / grossValue, true
}
