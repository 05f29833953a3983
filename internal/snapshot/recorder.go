// Package snapshot records point-in-time copies of account portfolios.
//
// The monitor asks for snapshots from its refresh loop, so TakeSnapshot only
// enqueues the request. A single worker builds each snapshot from the live
// portfolio and hands it to the sinks in order.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/bus"
	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/monitor"
	"positionmonitor/internal/obs"
	"positionmonitor/internal/portfolio"
	"positionmonitor/pkg/exception"
)

const defaultQueueSize = 64

// Portfolios looks up the live portfolio of an account.
type Portfolios interface {
	AccountPortfolio(account string) (*portfolio.Cache, bool)
}

// PortfoliosFunc adapts a function to Portfolios.
type PortfoliosFunc func(account string) (*portfolio.Cache, bool)

func (f PortfoliosFunc) AccountPortfolio(account string) (*portfolio.Cache, bool) {
	return f(account)
}

// Sink receives every built snapshot. A sink may set snap.ID.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap *model.PortfolioSnapshot) error
}

// Request is a queued snapshot request.
type Request struct {
	ID          uuid.UUID
	Account     string
	Type        enum.SnapshotType
	RequestedAt time.Time
}

type Config struct {
	Portfolios Portfolios
	Sinks      []Sink
	QueueSize  int
	Metrics    *obs.Metrics
	Now        func() time.Time
}

var _ monitor.SnapshotTaker = (*Recorder)(nil)

// Recorder implements monitor.SnapshotTaker.
type Recorder struct {
	portfolios Portfolios
	sinks      []Sink
	queue      *bus.Queue[Request]
	metrics    *obs.Metrics
	now        func() time.Time

	once sync.Once
	done chan struct{}
}

func NewRecorder(cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		portfolios: cfg.Portfolios,
		sinks:      cfg.Sinks,
		queue:      bus.NewQueue[Request](cfg.QueueSize),
		metrics:    cfg.Metrics,
		now:        now,
		done:       make(chan struct{}),
	}
}

// TakeSnapshot queues a snapshot of account. It never blocks; a full or
// closed queue drops the request and returns the queue error.
func (r *Recorder) TakeSnapshot(account string, typ enum.SnapshotType) error {
	req := Request{
		ID:          uuid.New(),
		Account:     account,
		Type:        typ,
		RequestedAt: r.now(),
	}
	if err := r.queue.TryPublish(req); err != nil {
		r.metrics.IncSnapshot(true)
		logs.Errorf("drop %s snapshot of %s, request: %s, err: %+v", typ, account, req.ID, err)
		return err
	}
	logs.Infof("queued %s snapshot of %s, request: %s", typ, account, req.ID)
	return nil
}

// Start launches the worker. It returns once the worker runs; the worker
// exits when ctx is done or Close has drained the queue.
func (r *Recorder) Start(ctx context.Context) {
	r.once.Do(func() {
		go func() {
			defer close(r.done)
			r.queue.Run(ctx, func(req Request) {
				r.handle(ctx, req)
			})
		}()
	})
}

// Close stops accepting requests and waits for the worker to drain the
// queue when it was started.
func (r *Recorder) Close() {
	r.queue.Close()
	started := true
	r.once.Do(func() { started = false })
	if started {
		<-r.done
	}
}

func (r *Recorder) handle(ctx context.Context, req Request) {
	snap, err := r.build(req)
	if err != nil {
		r.metrics.IncSnapshot(true)
		logs.Errorf("build %s snapshot of %s, request: %s, err: %+v", req.Type, req.Account, req.ID, err)
		return
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, &snap); err != nil {
			logs.Errorf("write snapshot to %s, request: %s, err: %+v", sink.Name(), req.ID, err)
		}
	}
	r.metrics.IncSnapshot(false)
	logs.Infof("took %s snapshot of %s, request: %s, id: %d, positions: %d",
		req.Type, req.Account, req.ID, snap.ID, len(snap.Positions))
}

func (r *Recorder) build(req Request) (model.PortfolioSnapshot, error) {
	if r.portfolios == nil {
		return model.PortfolioSnapshot{}, exception.ErrSnapshotNoPortfolio
	}
	c, ok := r.portfolios.AccountPortfolio(req.Account)
	if !ok {
		return model.PortfolioSnapshot{}, exception.ErrSnapshotNoPortfolio
	}
	return Build(c, req, r.now()), nil
}

// Build copies the current state of c into a snapshot.
func Build(c *portfolio.Cache, req Request, takenAt time.Time) model.PortfolioSnapshot {
	gross, netted := c.Exposure()
	snap := model.PortfolioSnapshot{
		RequestID:         req.ID,
		Account:           c.Account(),
		SnapshotType:      req.Type,
		TakenAt:           takenAt,
		DividendsReceived: c.DividendsReceived(),
		GrossExposure:     gross,
		NettedExposure:    netted,
		Positions:         c.Positions(),
		Indices:           c.Indices(),
	}
	if acct, ok := c.AccountData(); ok {
		snap.Benchmark = acct.Benchmark
	}
	return snap
}
