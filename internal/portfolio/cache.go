// Package portfolio holds the live per-account portfolio table.
//
// A Cache merges two update streams: periodic table snapshots pushed by the
// monitor through OnRefresh, and quote ticks delivered by its own quote feed
// connections. Table state is guarded by mu, subscriber state by feedMu, and
// feedMu is always taken before mu. mu is never held across a feed call.
package portfolio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/obs"
	"positionmonitor/internal/quotefeed"
	"positionmonitor/pkg/exception"
)

// Monitor is the part of the monitor a cache pulls from and registers with.
type Monitor interface {
	IsMonitoring() bool
	Register(c *Cache)
	Unregister(c *Cache)

	PositionsFor(account string) []model.SourcePosition
	AccountDataFor(account string) (model.AccountData, bool)
	IndexWeightsFor(account string) []model.IndexWeight
	TradesFor(account string) []model.Trade
	SnapshotIDsFor(account string) []model.SnapshotID
}

// Config configures a Cache.
type Config struct {
	Account string
	Monitor Monitor
	// Dialer is optional; without it the cache never subscribes.
	Dialer  quotefeed.Dialer
	Metrics *obs.Metrics
	Now     func() time.Time
}

var _ quotefeed.Handler = (*Cache)(nil)

// Cache is the portfolio of one account.
type Cache struct {
	account string
	monitor Monitor
	dialer  quotefeed.Dialer
	metrics *obs.Metrics
	now     func() time.Time

	lifeMu sync.Mutex

	mu            sync.RWMutex
	positions     []*model.Position
	positionIndex map[string]*model.Position
	indices       []*model.IndexRow
	indexIndex    map[string]*model.IndexRow
	benchmark     *model.IndexRow
	accountData   model.AccountData
	hasAccount    bool
	trades        []model.Trade
	dividends     decimal.Decimal
	snapshotIDs   []model.SnapshotID
	lastQuoteTime time.Time
	stoppedTime   time.Time

	feedMu       sync.Mutex
	positionFeed quotefeed.Feed
	indexFeed    quotefeed.Feed

	started    atomic.Bool
	subscribed atomic.Bool

	listenerMu sync.Mutex
	listeners  []func(account string)
}

// New creates an empty, stopped cache.
func New(cfg Config) *Cache {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		account:       cfg.Account,
		monitor:       cfg.Monitor,
		dialer:        cfg.Dialer,
		metrics:       cfg.Metrics,
		now:           now,
		positionIndex: make(map[string]*model.Position),
		indexIndex:    make(map[string]*model.IndexRow),
		dividends:     decimal.Zero,
	}
}

func (c *Cache) Account() string {
	return c.account
}

// Start loads the full portfolio and registers the cache for refreshes.
func (c *Cache) Start(ctx context.Context) error {
	if c.monitor == nil || !c.monitor.IsMonitoring() {
		return exception.ErrMonitorNotRunning
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.started.Load() {
		return nil
	}

	c.update(model.FullRefresh())
	c.monitor.Register(c)
	c.started.Store(true)
	logs.Infof("portfolio %s started, positions: %d", c.account, c.PositionCount())
	return nil
}

// Stop unregisters the cache and stops its subscriber. Table contents are kept.
func (c *Cache) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if !c.started.Swap(false) {
		return
	}

	if c.monitor != nil {
		c.monitor.Unregister(c)
	}
	c.StopSubscriber()
}

// StartSubscriber connects the quote feeds and subscribes every row that
// needs a quote.
func (c *Cache) StartSubscriber(ctx context.Context) error {
	if c.dialer == nil {
		return exception.ErrPortfolioNoDialer
	}

	requests, started, err := c.startSubscriber(ctx)
	if err != nil || !started {
		return err
	}

	logs.Infof("portfolio %s subscriber started, requests: %d", c.account, requests)
	c.notify()
	return nil
}

func (c *Cache) startSubscriber(ctx context.Context) (requests int, started bool, err error) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	if c.subscribed.Load() {
		return 0, false, nil
	}

	positionFeed, err := c.dialer.Dial(ctx, c)
	if err != nil {
		return 0, false, err
	}
	indexFeed, err := c.dialer.Dial(ctx, c)
	if err != nil {
		_ = positionFeed.Close()
		return 0, false, err
	}
	c.positionFeed, c.indexFeed = positionFeed, indexFeed
	c.subscribed.Store(true)

	plan := c.subscribeAll()
	c.apply(plan)
	return len(plan), true, nil
}

func (c *Cache) subscribeAll() subscriptionPlan {
	c.mu.Lock()
	defer c.mu.Unlock()

	var plan subscriptionPlan
	for _, p := range c.positions {
		if qualifies(p) {
			plan.subscribePosition(p)
		}
	}
	if c.benchmark != nil {
		plan.subscribeBenchmark(c.benchmark)
	}
	for _, r := range c.indices {
		plan.subscribeIndex(r)
	}
	c.stoppedTime = time.Time{}
	return plan
}

// StopSubscriber closes the quote feeds and marks every row unsubscribed.
func (c *Cache) StopSubscriber() {
	c.stopSubscriber()
	c.notify()
}

func (c *Cache) stopSubscriber() {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	wasSubscribed := c.subscribed.Swap(false)
	for _, f := range []quotefeed.Feed{c.positionFeed, c.indexFeed} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			logs.Errorf("portfolio %s close quote feed, err: %+v", c.account, err)
		}
	}
	c.positionFeed, c.indexFeed = nil, nil
	c.unsubscribeAll(wasSubscribed)
}

func (c *Cache) unsubscribeAll(wasSubscribed bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if wasSubscribed {
		c.stoppedTime = now
	}
	for _, p := range c.positions {
		markUnsubscribed(&p.Quote, now)
	}
	for _, r := range c.indices {
		markUnsubscribed(&r.Quote, now)
	}
	if c.benchmark != nil {
		markUnsubscribed(&c.benchmark.Quote, now)
	}
}

func markUnsubscribed(q *model.Quote, now time.Time) {
	q.Subscription = enum.SubscriptionUnsubscribed
	q.UpdateTime = now
}

// OnRefresh merges the table categories flagged in delta.
func (c *Cache) OnRefresh(delta model.RefreshDelta) {
	if !c.started.Load() || !delta.Any() {
		return
	}
	c.update(delta)
	c.notify()
}

func (c *Cache) update(delta model.RefreshDelta) {
	in := c.pull(delta)

	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	plan := func() subscriptionPlan {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.merge(delta, in)
	}()
	c.apply(plan)
}

// OnQuote merges a tick into the row it was subscribed for.
func (c *Cache) OnQuote(tick model.QuoteTick) {
	if !c.subscribed.Load() {
		c.metrics.IncTick(false)
		return
	}
	q, ok := tick.Handle.(*model.Quote)
	if !ok || q == nil {
		logs.Errorf("portfolio %s quote %s, err: %+v", c.account, tick.Symbol, exception.ErrPortfolioInvalidHandle)
		c.metrics.IncTick(false)
		return
	}

	now := c.now()
	applied := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !q.Apply(tick, now) {
			return false
		}
		c.lastQuoteTime = now
		return true
	}()

	c.metrics.IncTick(applied)
}

// OnError stops the subscriber on any error reported while subscribed.
func (c *Cache) OnError(err error) {
	if !c.subscribed.Load() {
		if isConnectionError(err) {
			return
		}
		logs.Errorf("portfolio %s quote feed error while unsubscribed, err: %+v", c.account, err)
		return
	}

	logs.Errorf("portfolio %s quote feed error, stopping subscriber, err: %+v", c.account, err)
	c.StopSubscriber()
}

// OnStopped stops the subscriber after the feed terminated on its own.
func (c *Cache) OnStopped(err error) {
	logs.Errorf("portfolio %s quote feed stopped, err: %+v", c.account, err)
	c.StopSubscriber()
}

func isConnectionError(err error) bool {
	return errors.Is(err, exception.ErrConnectionClose) ||
		errors.Is(err, exception.ErrConnectionLost) ||
		errors.Is(err, exception.ErrQuoteFeedClosed)
}

// AddListener registers fn to be called with the account name after every
// table or subscriber change.
func (c *Cache) AddListener(fn func(account string)) {
	if fn == nil {
		return
	}
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenerMu.Unlock()
}

func (c *Cache) notify() {
	c.listenerMu.Lock()
	listeners := make([]func(string), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(c.account)
	}
}

func (c *Cache) IsStarted() bool {
	return c.started.Load()
}

func (c *Cache) IsSubscribed() bool {
	return c.subscribed.Load()
}
