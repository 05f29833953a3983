// Package netting collapses offsetting future/put/call positions on one
// underlying into a per-row adjustment.
//
// The matching is greedy: futures by ascending expiration, then puts of the
// same expiration by ascending strike, each capped by the short calls of the
// same expiration at or below the put's strike, consumed from the highest
// strike down. Quantities are converted back from underlying units with
// integer division, so any remainder stays unnetted.
package netting

import (
	"sort"
	"time"

	"github.com/yanun0323/errors"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

// Net recomputes NettingAdjustment for rows, which must all share one
// underlying. On failure every adjustment is reset to zero.
func Net(rows []*model.Position) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(exception.ErrNettingFailed, "panic: %v", r)
		}
		if err != nil {
			reset(rows)
		}
	}()

	reset(rows)

	ordered := make([]*model.Position, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Symbol < ordered[j].Symbol
	})

	futures := filter(ordered, func(p *model.Position) bool { return p.IsFuture })
	sort.SliceStable(futures, func(i, j int) bool {
		return futures[i].ExpirationDate.Before(futures[j].ExpirationDate)
	})

	for _, fut := range futures {
		if fut.NetPosition() <= 0 {
			continue
		}

		puts := filter(ordered, func(p *model.Position) bool {
			return p.OptionType == enum.OptionPut && sameDay(p.ExpirationDate, fut.ExpirationDate) && p.NetPosition() > 0
		})
		sort.SliceStable(puts, func(i, j int) bool {
			return puts[i].StrikePrice < puts[j].StrikePrice
		})

		for _, put := range puts {
			if err := netPut(ordered, fut, put); err != nil {
				return err
			}
			if fut.NetPosition() <= 0 {
				break
			}
		}
	}

	return nil
}

func netPut(rows []*model.Position, fut, put *model.Position) error {
	f := min(fut.NetPosition()*fut.Multiplier, put.NetPosition()*put.Multiplier)
	if f <= 0 {
		return nil
	}

	calls := filter(rows, func(p *model.Position) bool {
		return p.OptionType == enum.OptionCall && sameDay(p.ExpirationDate, fut.ExpirationDate) &&
			p.NetPosition() < 0 && p.StrikePrice <= put.StrikePrice
	})
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].StrikePrice > calls[j].StrikePrice
	})

	callSum := 0
	for _, call := range calls {
		callSum -= call.NetPosition() * call.Multiplier
	}
	f = min(f, callSum)
	if f <= 0 {
		return nil
	}

	if err := checkMultiplier(fut, put); err != nil {
		return err
	}
	fut.NettingAdjustment -= f / fut.Multiplier
	put.NettingAdjustment -= f / put.Multiplier

	for _, call := range calls {
		if err := checkMultiplier(call); err != nil {
			return err
		}
		absorbed := min(f, -call.NetPosition()*call.Multiplier)
		f -= absorbed
		call.NettingAdjustment += absorbed / call.Multiplier
		if f <= 0 {
			break
		}
	}

	return nil
}

// Exposure sums the absolute net position of rows in underlying units.
func Exposure(rows []*model.Position) int64 {
	var total int64
	for _, p := range rows {
		v := int64(p.NetPosition()) * int64(p.Multiplier)
		if v < 0 {
			v = -v
		}
		total += v
	}
	return total
}

// GrossExposure is Exposure ignoring netting adjustments.
func GrossExposure(rows []*model.Position) int64 {
	var total int64
	for _, p := range rows {
		v := int64(p.CurrentPosition) * int64(p.Multiplier)
		if v < 0 {
			v = -v
		}
		total += v
	}
	return total
}

// GroupByUnderlying returns the rows of table keyed by underlying symbol.
func GroupByUnderlying(table []*model.Position) map[string][]*model.Position {
	groups := make(map[string][]*model.Position)
	for _, p := range table {
		if p.UnderlyingSymbol == "" {
			continue
		}
		groups[p.UnderlyingSymbol] = append(groups[p.UnderlyingSymbol], p)
	}
	return groups
}

func checkMultiplier(rows ...*model.Position) error {
	for _, p := range rows {
		if p.Multiplier == 0 {
			return errors.Wrapf(exception.ErrNettingZeroMultiplier, "symbol: %s", p.Symbol)
		}
	}
	return nil
}

func reset(rows []*model.Position) {
	for _, p := range rows {
		p.NettingAdjustment = 0
	}
}

func filter(rows []*model.Position, keep func(*model.Position) bool) []*model.Position {
	var out []*model.Position
	for _, p := range rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
