// Package monitor drives the periodic refresh of the master tables and fans
// the changes out to the per-account portfolio caches.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/obs"
	"positionmonitor/internal/portfolio"
	"positionmonitor/internal/quotefeed"
	"positionmonitor/pkg/exception"
)

const defaultInterval = 5 * time.Second

// DataSource is the relational store the monitor polls. Each table call
// takes an account filter, empty for all accounts, and a watermark that is
// read and advanced by the source; a nil slice with a nil error means the
// table has not changed since the watermark.
type DataSource interface {
	Ping(ctx context.Context) error
	Accounts(ctx context.Context, account string, watermark *time.Time) ([]model.AccountData, error)
	Positions(ctx context.Context, account string, watermark *time.Time) ([]model.SourcePosition, error)
	IndexWeights(ctx context.Context, account string, watermark *time.Time) ([]model.IndexWeight, error)
	TradingSchedule(ctx context.Context, account string, watermark *time.Time) ([]model.TradingSchedule, time.Time, error)
	Trades(ctx context.Context, account string, date time.Time, watermark *time.Time) ([]model.Trade, error)
	SnapshotIDs(ctx context.Context, account string, watermark *time.Time) ([]model.SnapshotID, error)
	PortfolioSnapshot(ctx context.Context, id int64) (model.PortfolioSnapshot, error)
}

// SnapshotTaker records a portfolio snapshot. Calls must not block. A
// refused request is retried on the next cycle.
type SnapshotTaker interface {
	TakeSnapshot(account string, typ enum.SnapshotType) error
}

// Config configures a Monitor.
type Config struct {
	Interval time.Duration
	// AccountLimit caps the number of monitored accounts when > 0.
	AccountLimit      int
	WaitForFirstCycle bool

	Dialer    quotefeed.Dialer
	Snapshots SnapshotTaker
	Metrics   *obs.Metrics
	Now       func() time.Time
}

var _ portfolio.Monitor = (*Monitor)(nil)

// Monitor owns the master tables and the registry of account portfolios.
type Monitor struct {
	cfg Config
	now func() time.Time

	lifeMu sync.Mutex
	state  lifecycle
	cancel context.CancelFunc
	done   chan struct{}
	// draining is the done channel of a loop that stopped itself.
	draining chan struct{}

	sourceMu sync.RWMutex
	source   DataSource

	mu         sync.RWMutex
	portfolios map[string]*portfolio.Cache
	registered map[*portfolio.Cache]struct{}

	tableMu sync.RWMutex
	tables  tables

	listenerMu       sync.Mutex
	stoppedListeners []func(err error)
	refreshListeners []func(delta model.RefreshDelta)
}

// New creates an uninitialized monitor.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:        cfg,
		now:        now,
		portfolios: make(map[string]*portfolio.Cache),
		registered: make(map[*portfolio.Cache]struct{}),
		tables:     newTables(),
	}
}

func (m *Monitor) State() State {
	return m.state.Load()
}

func (m *Monitor) IsMonitoring() bool {
	return m.state.Load() == StateMonitoring
}

// Initialize binds the data source. It is a no-op once it has succeeded.
func (m *Monitor) Initialize(ctx context.Context, source DataSource) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.state.Load() != StateUninitialized {
		return nil
	}
	if source == nil {
		return exception.ErrMonitorNilSource
	}
	if err := source.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping data source")
	}

	m.sourceMu.Lock()
	m.source = source
	m.sourceMu.Unlock()
	return m.state.Transition(StateUninitialized, StateInitialized)
}

// StartMonitor loads every table, builds one portfolio per account and
// launches the refresh loop.
func (m *Monitor) StartMonitor(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	switch m.state.Load() {
	case StateUninitialized:
		return exception.ErrMonitorNotInitialized
	case StateMonitoring:
		return exception.ErrMonitorAlreadyRunning
	}
	if m.draining != nil {
		<-m.draining
		m.draining = nil
	}

	delta := m.refreshCritical(ctx)
	delta = merge(delta, m.refreshNoncritical(ctx))
	logs.Infof("monitor initial refresh, delta: %+v", delta)

	m.mu.Lock()
	old := m.portfolios
	m.portfolios = make(map[string]*portfolio.Cache)
	m.mu.Unlock()
	for _, c := range old {
		c.Stop()
	}

	if err := m.state.Transition(StateInitialized, StateMonitoring); err != nil {
		return err
	}

	for _, acct := range m.accountRows() {
		c := portfolio.New(portfolio.Config{
			Account: acct.Account,
			Monitor: m,
			Dialer:  m.cfg.Dialer,
			Metrics: m.cfg.Metrics,
			Now:     m.now,
		})
		if err := c.Start(ctx); err != nil {
			logs.Errorf("start portfolio %s, err: %+v", acct.Account, err)
			continue
		}
		m.mu.Lock()
		m.portfolios[acct.Account] = c
		m.mu.Unlock()
	}
	m.cfg.Metrics.SetAccounts(len(m.AllAccountPortfolios()))
	m.ensureSubscribers(ctx)

	if m.cfg.WaitForFirstCycle {
		select {
		case <-ctx.Done():
		case <-time.After(m.cfg.Interval):
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx, m.done)

	logs.Infof("monitor started, accounts: %d, interval: %s", len(m.AllAccountPortfolios()), m.cfg.Interval)
	return nil
}

// StopMonitor stops every portfolio and the refresh loop, then reports err
// to the monitor-stopped listeners. It is a no-op unless monitoring. It
// waits for the loop to exit, so it must not be called from a refresh
// listener.
func (m *Monitor) StopMonitor(err error) {
	m.stop(err, true)
}

// stopFromLoop is StopMonitor for the loop goroutine itself. The next
// StartMonitor waits for the loop to exit.
func (m *Monitor) stopFromLoop(err error) {
	m.stop(err, false)
}

func (m *Monitor) stop(err error, wait bool) {
	m.lifeMu.Lock()
	if m.state.Transition(StateMonitoring, StateInitialized) != nil {
		m.lifeMu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	if !wait {
		m.draining = done
	}

	m.mu.Lock()
	caches := make([]*portfolio.Cache, 0, len(m.portfolios))
	for _, c := range m.portfolios {
		caches = append(caches, c)
	}
	m.portfolios = make(map[string]*portfolio.Cache)
	m.registered = make(map[*portfolio.Cache]struct{})
	m.mu.Unlock()
	m.lifeMu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range caches {
		c.Stop()
	}
	if wait && done != nil {
		<-done
	}
	m.cfg.Metrics.SetAccounts(0)

	if err != nil {
		logs.Errorf("monitor stopped, err: %+v", err)
	} else {
		logs.Info("monitor stopped")
	}

	m.listenerMu.Lock()
	listeners := make([]func(error), len(m.stoppedListeners))
	copy(listeners, m.stoppedListeners)
	m.listenerMu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// StopQuoteFeed stops the quote subscriber of every portfolio. The loop
// restarts them on its next cycle while monitoring.
func (m *Monitor) StopQuoteFeed() {
	for _, c := range m.AllAccountPortfolios() {
		c.StopSubscriber()
	}
}

// AddStoppedListener registers fn to run after the monitor stops.
func (m *Monitor) AddStoppedListener(fn func(err error)) {
	if fn == nil {
		return
	}
	m.listenerMu.Lock()
	m.stoppedListeners = append(m.stoppedListeners, fn)
	m.listenerMu.Unlock()
}

// AddRefreshListener registers fn to run after each fan-out.
func (m *Monitor) AddRefreshListener(fn func(delta model.RefreshDelta)) {
	if fn == nil {
		return
	}
	m.listenerMu.Lock()
	m.refreshListeners = append(m.refreshListeners, fn)
	m.listenerMu.Unlock()
}

func (m *Monitor) Register(c *portfolio.Cache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[c] = struct{}{}
}

func (m *Monitor) Unregister(c *portfolio.Cache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registered, c)
}

func (m *Monitor) registeredCaches() []*portfolio.Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*portfolio.Cache, 0, len(m.registered))
	for c := range m.registered {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account() < out[j].Account()
	})
	return out
}

func merge(a, b model.RefreshDelta) model.RefreshDelta {
	return model.RefreshDelta{
		Positions:       a.Positions || b.Positions,
		Accounts:        a.Accounts || b.Accounts,
		IndexWeights:    a.IndexWeights || b.IndexWeights,
		Trades:          a.Trades || b.Trades,
		TradingSchedule: a.TradingSchedule || b.TradingSchedule,
		SnapshotIDs:     a.SnapshotIDs || b.SnapshotIDs,
	}
}
