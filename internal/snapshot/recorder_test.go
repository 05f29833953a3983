package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/obs"
	"positionmonitor/internal/portfolio"
	"positionmonitor/pkg/exception"
)

var noon = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type staticMonitor struct {
	positions []model.SourcePosition
	account   model.AccountData
	trades    []model.Trade
}

func (m *staticMonitor) IsMonitoring() bool { return true }
func (m *staticMonitor) Register(*portfolio.Cache) {}
func (m *staticMonitor) Unregister(*portfolio.Cache) {}
func (m *staticMonitor) IndexWeightsFor(string) []model.IndexWeight { return nil }
func (m *staticMonitor) SnapshotIDsFor(string) []model.SnapshotID { return nil }
func (m *staticMonitor) TradesFor(string) []model.Trade { return m.trades }

func (m *staticMonitor) PositionsFor(string) []model.SourcePosition {
	return m.positions
}

func (m *staticMonitor) AccountDataFor(string) (model.AccountData, bool) {
	return m.account, true
}

type portfolios map[string]*portfolio.Cache

func (p portfolios) AccountPortfolio(account string) (*portfolio.Cache, bool) {
	c, ok := p[account]
	return c, ok
}

type captureSink struct {
	mu    sync.Mutex
	snaps []model.PortfolioSnapshot
	err   error
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Write(_ context.Context, snap *model.PortfolioSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, *snap)
	return s.err
}

type fakeStore struct {
	next int64
	err  error
}

func (s *fakeStore) InsertPortfolioSnapshot(context.Context, model.PortfolioSnapshot) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func startedCache(t *testing.T) *portfolio.Cache {
	t.Helper()
	mon := &staticMonitor{
		positions: []model.SourcePosition{
			{Account: "A1", Symbol: "IBM", IsStock: true, Multiplier: 1, AssociatedIndexMultiplier: 1, CurrentPosition: 100},
			{Account: "A1", Symbol: "MSFT", IsStock: true, Multiplier: 1, AssociatedIndexMultiplier: 1, CurrentPosition: -50},
		},
		account: model.AccountData{Account: "A1", Benchmark: "SPXT"},
		trades: []model.Trade{
			{Account: "A1", Symbol: "IBM", TradeType: model.TradeTypeDividend, ChangeInCost: decimal.NewFromInt(-20)},
		},
	}
	c := portfolio.New(portfolio.Config{Account: "A1", Monitor: mon, Now: func() time.Time { return noon }})
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestBuild(t *testing.T) {
	c := startedCache(t)
	req := Request{ID: uuid.New(), Account: "A1", Type: enum.SnapshotEndOfDay}

	snap := Build(c, req, noon)
	assert.Equal(t, req.ID, snap.RequestID)
	assert.Equal(t, "A1", snap.Account)
	assert.Equal(t, enum.SnapshotEndOfDay, snap.SnapshotType)
	assert.Equal(t, "SPXT", snap.Benchmark)
	assert.Equal(t, int64(150), snap.GrossExposure)
	assert.Equal(t, int64(150), snap.NettedExposure)
	assert.True(t, decimal.NewFromInt(20).Equal(snap.DividendsReceived))
	assert.Len(t, snap.Positions, 2)
}

func TestRecorder(t *testing.T) {
	capture := &captureSink{}
	metrics := obs.NewMetrics(nil)
	r := NewRecorder(Config{
		Portfolios: portfolios{"A1": startedCache(t)},
		Sinks:      []Sink{NewStoreSink(&fakeStore{next: 6}), capture},
		Metrics:    metrics,
		Now:        func() time.Time { return noon },
	})

	require.NoError(t, r.TakeSnapshot("A1", enum.SnapshotStartOfTrading))
	require.NoError(t, r.TakeSnapshot("missing", enum.SnapshotEndOfTrading))
	r.Start(context.Background())
	r.Close()

	require.Len(t, capture.snaps, 1)
	assert.Equal(t, int64(7), capture.snaps[0].ID)
	assert.Equal(t, enum.SnapshotStartOfTrading, capture.snaps[0].SnapshotType)
	assert.Equal(t, noon, capture.snaps[0].TakenAt)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.SnapshotsTaken)
	assert.Equal(t, uint64(1), snap.SnapshotDrops)
}

func TestRecorderSinkErrorDoesNotStopOthers(t *testing.T) {
	capture := &captureSink{}
	r := NewRecorder(Config{
		Portfolios: portfolios{"A1": startedCache(t)},
		Sinks:      []Sink{NewStoreSink(&fakeStore{err: errors.New("db down")}), capture},
	})
	require.NoError(t, r.TakeSnapshot("A1", enum.SnapshotEndOfDay))
	r.Start(context.Background())
	r.Close()

	require.Len(t, capture.snaps, 1)
	assert.Zero(t, capture.snaps[0].ID)
}

func TestRecorderQueueFull(t *testing.T) {
	metrics := obs.NewMetrics(nil)
	r := NewRecorder(Config{QueueSize: 1, Metrics: metrics})
	require.NoError(t, r.TakeSnapshot("A1", enum.SnapshotEndOfDay))
	assert.ErrorIs(t, r.TakeSnapshot("A1", enum.SnapshotEndOfDay), exception.ErrSnapshotQueueFull)
	r.Close()
	assert.ErrorIs(t, r.TakeSnapshot("A1", enum.SnapshotEndOfDay), exception.ErrSnapshotQueueClosed)

	assert.Equal(t, uint64(2), metrics.Snapshot().SnapshotDrops)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	snap := Build(startedCache(t), Request{ID: uuid.New(), Type: enum.SnapshotEndOfTrading}, noon)

	require.NoError(t, sink.Write(context.Background(), &snap))
	path := sink.Path(snap)
	assert.Equal(t, filepath.Join(dir, "A1"), filepath.Dir(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap.RequestID, got.RequestID)
	assert.Equal(t, snap.SnapshotType, got.SnapshotType)
	assert.Equal(t, snap.GrossExposure, got.GrossExposure)
	require.Len(t, got.Positions, 2)
	assert.Equal(t, "IBM", got.Positions[0].Symbol)

	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)
	snap := model.PortfolioSnapshot{Account: "A1", SnapshotType: enum.SnapshotEndOfDay}

	require.NoError(t, sink.Write(context.Background(), &snap))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("A1"), w.msgs[0].Key)
	assert.Contains(t, string(w.msgs[0].Value), `"snapshotType":"EndOfDay"`)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}
