package obs

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Table identifies a data source table category.
type Table uint8

const (
	TablePositions Table = iota
	TableAccounts
	TableIndexWeights
	TableTradingSchedule
	TableTrades
	TableSnapshotIDs
	tableCount
)

func (t Table) String() string {
	switch t {
	case TablePositions:
		return "positions"
	case TableAccounts:
		return "accounts"
	case TableIndexWeights:
		return "index_weights"
	case TableTradingSchedule:
		return "trading_schedule"
	case TableTrades:
		return "trades"
	case TableSnapshotIDs:
		return "snapshot_ids"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats, mirrored into
// prometheus collectors.
type Metrics struct {
	refreshCycles   uint64
	tableUpdates    [tableCount]uint64
	sourceFailures  [tableCount]uint64
	ticksApplied    uint64
	ticksIgnored    uint64
	nettingRuns     uint64
	nettingFailures uint64
	subscribes      uint64
	unsubscribes    uint64
	snapshotsTaken  uint64
	snapshotDrops   uint64

	refreshLatency LatencyStats
	fanoutLatency  LatencyStats

	prom promCollectors
}

type promCollectors struct {
	refreshCycles  prometheus.Counter
	tableUpdates   *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	ticks          *prometheus.CounterVec
	netting        *prometheus.CounterVec
	subscriptions  *prometheus.CounterVec
	snapshots      *prometheus.CounterVec
	accounts       prometheus.Gauge
	refreshSeconds prometheus.Histogram
	fanoutSeconds  prometheus.Histogram
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	RefreshCycles   uint64
	TableUpdates    map[Table]uint64
	SourceFailures  map[Table]uint64
	TicksApplied    uint64
	TicksIgnored    uint64
	NettingRuns     uint64
	NettingFailures uint64
	Subscribes      uint64
	Unsubscribes    uint64
	SnapshotsTaken  uint64
	SnapshotDrops   uint64
	RefreshLatency  LatencySnapshot
	FanoutLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container. Collectors are registered on reg
// when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		prom: promCollectors{
			refreshCycles: f.NewCounter(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "refresh_cycles_total",
				Help:      "Completed refresh loop iterations.",
			}),
			tableUpdates: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "table_updates_total",
				Help:      "Data source pulls that returned changed rows.",
			}, []string{"table"}),
			sourceFailures: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "source_failures_total",
				Help:      "Data source pulls that failed.",
			}, []string{"table"}),
			ticks: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "quote_ticks_total",
				Help:      "Quote ticks received by portfolio caches.",
			}, []string{"result"}),
			netting: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "netting_runs_total",
				Help:      "Netting runs per underlying.",
			}, []string{"result"}),
			subscriptions: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "quote_subscriptions_total",
				Help:      "Quote subscribe and unsubscribe requests.",
			}, []string{"action"}),
			snapshots: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "position_monitor",
				Name:      "snapshots_total",
				Help:      "Scheduled portfolio snapshot requests.",
			}, []string{"result"}),
			accounts: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "position_monitor",
				Name:      "accounts",
				Help:      "Account portfolios in the registry.",
			}),
			refreshSeconds: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "position_monitor",
				Name:      "refresh_duration_seconds",
				Help:      "Time spent pulling tables per refresh cycle.",
				Buckets:   prometheus.DefBuckets,
			}),
			fanoutSeconds: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "position_monitor",
				Name:      "fanout_duration_seconds",
				Help:      "Time spent notifying portfolio caches per refresh cycle.",
				Buckets:   prometheus.DefBuckets,
			}),
		},
	}
}

// IncRefreshCycle records a completed refresh iteration.
func (m *Metrics) IncRefreshCycle() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.refreshCycles, 1)
	m.prom.refreshCycles.Inc()
}

// IncTableUpdate records a pull that returned changed rows.
func (m *Metrics) IncTableUpdate(t Table) {
	if m == nil || t >= tableCount {
		return
	}
	atomic.AddUint64(&m.tableUpdates[t], 1)
	m.prom.tableUpdates.WithLabelValues(t.String()).Inc()
}

// IncSourceFailure records a failed pull.
func (m *Metrics) IncSourceFailure(t Table) {
	if m == nil || t >= tableCount {
		return
	}
	atomic.AddUint64(&m.sourceFailures[t], 1)
	m.prom.sourceFailures.WithLabelValues(t.String()).Inc()
}

// IncTick records a tick; applied is false when nothing was written.
func (m *Metrics) IncTick(applied bool) {
	if m == nil {
		return
	}
	if applied {
		atomic.AddUint64(&m.ticksApplied, 1)
		m.prom.ticks.WithLabelValues("applied").Inc()
		return
	}
	atomic.AddUint64(&m.ticksIgnored, 1)
	m.prom.ticks.WithLabelValues("ignored").Inc()
}

// IncNetting records a netting run for one underlying.
func (m *Metrics) IncNetting(failed bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.nettingRuns, 1)
	if failed {
		atomic.AddUint64(&m.nettingFailures, 1)
		m.prom.netting.WithLabelValues("failed").Inc()
		return
	}
	m.prom.netting.WithLabelValues("ok").Inc()
}

// AddSubscriptions records subscribe requests.
func (m *Metrics) AddSubscriptions(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.subscribes, uint64(n))
	m.prom.subscriptions.WithLabelValues("subscribe").Add(float64(n))
}

// AddUnsubscriptions records unsubscribe requests.
func (m *Metrics) AddUnsubscriptions(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.unsubscribes, uint64(n))
	m.prom.subscriptions.WithLabelValues("unsubscribe").Add(float64(n))
}

// IncSnapshot records a snapshot request; dropped is true when it could not be queued.
func (m *Metrics) IncSnapshot(dropped bool) {
	if m == nil {
		return
	}
	if dropped {
		atomic.AddUint64(&m.snapshotDrops, 1)
		m.prom.snapshots.WithLabelValues("dropped").Inc()
		return
	}
	atomic.AddUint64(&m.snapshotsTaken, 1)
	m.prom.snapshots.WithLabelValues("taken").Inc()
}

// SetAccounts reports the registry size.
func (m *Metrics) SetAccounts(n int) {
	if m == nil {
		return
	}
	m.prom.accounts.Set(float64(n))
}

// ObserveRefresh measures table pull time for one cycle.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshLatency.Observe(d)
	m.prom.refreshSeconds.Observe(d.Seconds())
}

// ObserveFanout measures cache notification time for one cycle.
func (m *Metrics) ObserveFanout(d time.Duration) {
	if m == nil {
		return
	}
	m.fanoutLatency.Observe(d)
	m.prom.fanoutSeconds.Observe(d.Seconds())
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	updates := make(map[Table]uint64)
	failures := make(map[Table]uint64)
	for i := Table(0); i < tableCount; i++ {
		if v := atomic.LoadUint64(&m.tableUpdates[i]); v > 0 {
			updates[i] = v
		}
		if v := atomic.LoadUint64(&m.sourceFailures[i]); v > 0 {
			failures[i] = v
		}
	}
	return Snapshot{
		RefreshCycles:   atomic.LoadUint64(&m.refreshCycles),
		TableUpdates:    updates,
		SourceFailures:  failures,
		TicksApplied:    atomic.LoadUint64(&m.ticksApplied),
		TicksIgnored:    atomic.LoadUint64(&m.ticksIgnored),
		NettingRuns:     atomic.LoadUint64(&m.nettingRuns),
		NettingFailures: atomic.LoadUint64(&m.nettingFailures),
		Subscribes:      atomic.LoadUint64(&m.subscribes),
		Unsubscribes:    atomic.LoadUint64(&m.unsubscribes),
		SnapshotsTaken:  atomic.LoadUint64(&m.snapshotsTaken),
		SnapshotDrops:   atomic.LoadUint64(&m.snapshotDrops),
		RefreshLatency:  m.refreshLatency.Snapshot(),
		FanoutLatency:   m.fanoutLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
