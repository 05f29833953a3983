package portfolio

import (
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/netting"
)

type pulled struct {
	positions    []model.SourcePosition
	indexWeights []model.IndexWeight
	account      model.AccountData
	hasAccount   bool
	trades       []model.Trade
	snapshotIDs  []model.SnapshotID
}

// pull reads this account's rows for the flagged categories. It runs
// without holding any cache lock.
func (c *Cache) pull(delta model.RefreshDelta) pulled {
	var in pulled
	if c.monitor == nil {
		return in
	}
	if delta.Positions {
		in.positions = c.monitor.PositionsFor(c.account)
	}
	if delta.IndexWeights {
		in.indexWeights = c.monitor.IndexWeightsFor(c.account)
	}
	if delta.Accounts {
		in.account, in.hasAccount = c.monitor.AccountDataFor(c.account)
	}
	if delta.Trades {
		in.trades = c.monitor.TradesFor(c.account)
	}
	if delta.SnapshotIDs {
		in.snapshotIDs = c.monitor.SnapshotIDsFor(c.account)
	}
	return in
}

// merge must be called with mu held.
func (c *Cache) merge(delta model.RefreshDelta, in pulled) subscriptionPlan {
	var plan subscriptionPlan
	if delta.Positions {
		c.mergePositions(in.positions, &plan)
	}
	if delta.IndexWeights {
		c.mergeIndices(in.indexWeights, &plan)
	}
	if delta.Accounts && in.hasAccount {
		c.mergeAccount(in.account, &plan)
	}
	if delta.Trades {
		c.trades = in.trades
		c.dividends = model.DividendsReceived(in.trades)
	}
	if delta.SnapshotIDs {
		c.snapshotIDs = in.snapshotIDs
	}
	return plan
}

func (c *Cache) mergePositions(rows []model.SourcePosition, plan *subscriptionPlan) {
	var gen int64
	for _, p := range c.positions {
		gen = max(gen, p.UpdateCounter)
	}
	gen++

	subscribed := c.subscribed.Load()
	dirty := make(map[string]struct{})

	for _, src := range rows {
		if src.Account != c.account {
			continue
		}

		p, ok := c.positionIndex[src.Symbol]
		if !ok {
			p = model.NewPosition(src)
			c.positions = append(c.positions, p)
			c.positionIndex[p.Symbol] = p
			if _, ok := p.Kind(); !ok {
				logs.Errorf("portfolio %s position %s has no instrument flag, quoting as stock", c.account, p.Symbol)
			}
			if p.IsDerivative() {
				dirty[p.UnderlyingSymbol] = struct{}{}
			}
		} else {
			changed := p.CurrentPosition != src.CurrentPosition
			p.RefreshQuantities(src)
			if changed && p.IsDerivative() {
				dirty[p.UnderlyingSymbol] = struct{}{}
			}
		}

		p.UpdateCounter = gen
		if subscribed && p.Subscription != enum.SubscriptionSubscribed && qualifies(p) {
			plan.subscribePosition(p)
		}
	}

	for _, p := range c.positions {
		if p.UpdateCounter >= gen {
			continue
		}
		p.UpdateCounter = gen
		if p.CurrentPosition == 0 {
			continue
		}
		p.ChangeInPosition -= p.CurrentPosition
		p.CurrentPosition = 0
		p.CurrentCost = 0
		if p.IsDerivative() {
			dirty[p.UnderlyingSymbol] = struct{}{}
		}
	}

	if subscribed {
		for _, p := range c.positions {
			if p.Subscription == enum.SubscriptionSubscribed && !qualifies(p) {
				plan.unsubscribePosition(p)
			}
		}
	}

	if len(dirty) > 0 {
		c.net(dirty)
	}
}

func (c *Cache) net(dirty map[string]struct{}) {
	groups := netting.GroupByUnderlying(c.positions)
	for underlying := range dirty {
		rows, ok := groups[underlying]
		if !ok {
			continue
		}
		err := netting.Net(rows)
		c.metrics.IncNetting(err != nil)
		if err != nil {
			logs.Errorf("portfolio %s netting %s, err: %+v", c.account, underlying, err)
		}
	}
}

func (c *Cache) mergeIndices(rows []model.IndexWeight, plan *subscriptionPlan) {
	subscribed := c.subscribed.Load()
	seen := make(map[string]struct{}, len(rows))

	for _, w := range rows {
		if w.Account != c.account {
			continue
		}
		seen[w.Symbol] = struct{}{}

		r, ok := c.indexIndex[w.Symbol]
		if !ok {
			r = model.NewIndexRow(w)
			c.indices = append(c.indices, r)
			c.indexIndex[r.Symbol] = r
		} else {
			r.Weight = w.Weight
		}

		if subscribed && r.Subscription != enum.SubscriptionSubscribed {
			plan.subscribeIndex(r)
		}
	}

	// rows are never removed, only weighted out
	for _, r := range c.indices {
		if _, ok := seen[r.Symbol]; !ok {
			r.Weight = 0
		}
	}
}

func (c *Cache) mergeAccount(data model.AccountData, plan *subscriptionPlan) {
	c.accountData = data
	c.hasAccount = true

	symbol := data.BenchmarkSymbol()
	if c.benchmark != nil && c.benchmark.Symbol == symbol && c.benchmark.IsIndex == data.IsIndex {
		return
	}

	subscribed := c.subscribed.Load()
	if c.benchmark != nil && subscribed && c.benchmark.Subscription == enum.SubscriptionSubscribed {
		plan.unsubscribeBenchmark(c.benchmark)
	}
	c.benchmark = nil
	if symbol == "" {
		return
	}

	c.benchmark = model.NewIndexRow(model.IndexWeight{
		Account: c.account,
		Symbol:  symbol,
		IsIndex: data.IsIndex,
	})
	if subscribed {
		plan.subscribeBenchmark(c.benchmark)
	}
}

func qualifies(p *model.Position) bool {
	return p.NeedsQuote()
}
