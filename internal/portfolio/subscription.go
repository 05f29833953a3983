package portfolio

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/quotefeed"
)

type feedSide uint8

const (
	positionSide feedSide = iota
	indexSide
)

type subscriptionRequest struct {
	side        feedSide
	symbol      string
	kind        enum.InstrumentKind
	quote       *model.Quote
	unsubscribe bool
}

// subscriptionPlan is built under mu and applied after mu is released.
// Row status is updated when a request is queued; failed subscribes are
// marked afterwards.
type subscriptionPlan []subscriptionRequest

func (p *subscriptionPlan) subscribePosition(row *model.Position) {
	kind, _ := row.Kind()
	row.Subscription = enum.SubscriptionSubscribed
	*p = append(*p, subscriptionRequest{side: positionSide, symbol: row.Symbol, kind: kind, quote: &row.Quote})
}

func (p *subscriptionPlan) unsubscribePosition(row *model.Position) {
	row.Subscription = enum.SubscriptionUnsubscribed
	*p = append(*p, subscriptionRequest{side: positionSide, symbol: row.Symbol, quote: &row.Quote, unsubscribe: true})
}

// The benchmark is quoted on the position connection. A position on the same
// symbol shares the wire subscription and keeps its own handle.
func (p *subscriptionPlan) subscribeBenchmark(row *model.IndexRow) {
	row.Subscription = enum.SubscriptionSubscribed
	*p = append(*p, subscriptionRequest{side: positionSide, symbol: row.Symbol, kind: row.Kind(), quote: &row.Quote})
}

func (p *subscriptionPlan) unsubscribeBenchmark(row *model.IndexRow) {
	row.Subscription = enum.SubscriptionUnsubscribed
	*p = append(*p, subscriptionRequest{side: positionSide, symbol: row.Symbol, quote: &row.Quote, unsubscribe: true})
}

func (p *subscriptionPlan) subscribeIndex(row *model.IndexRow) {
	row.Subscription = enum.SubscriptionSubscribed
	*p = append(*p, subscriptionRequest{side: indexSide, symbol: row.Symbol, kind: row.Kind(), quote: &row.Quote})
}

func (c *Cache) feed(side feedSide) quotefeed.Feed {
	if side == indexSide {
		return c.indexFeed
	}
	return c.positionFeed
}

// apply sends plan to the feeds. It must be called with feedMu held and mu released.
func (c *Cache) apply(plan subscriptionPlan) {
	if len(plan) == 0 {
		return
	}

	var subscribed, unsubscribed int
	var failed []*model.Quote
	for _, req := range plan {
		f := c.feed(req.side)
		if f == nil {
			continue
		}

		if req.unsubscribe {
			if err := f.Unsubscribe(req.symbol, req.quote); err != nil {
				logs.Errorf("portfolio %s unsubscribe %s, err: %+v", c.account, req.symbol, err)
				continue
			}
			unsubscribed++
			continue
		}

		if err := f.Subscribe(req.symbol, req.kind, req.quote); err != nil {
			err = errors.Wrap(err, "subscribe").With("symbol", req.symbol).With("kind", req.kind.String())
			logs.Errorf("portfolio %s, err: %+v", c.account, err)
			failed = append(failed, req.quote)
			continue
		}
		subscribed++
	}

	c.metrics.AddSubscriptions(subscribed)
	c.metrics.AddUnsubscriptions(unsubscribed)

	if len(failed) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range failed {
		q.Subscription = enum.SubscriptionFailed
	}
}
