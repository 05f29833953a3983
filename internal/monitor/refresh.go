package monitor

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/internal/obs"
	"positionmonitor/pkg/exception"
)

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var delta model.RefreshDelta
	for {
		next, ok, err := m.iterate(ctx, delta)
		if err != nil {
			m.stopFromLoop(err)
			return
		}
		if !ok {
			return
		}
		delta = next
	}
}

// iterate runs one loop cycle. ok is false once the loop must exit.
func (m *Monitor) iterate(ctx context.Context, delta model.RefreshDelta) (next model.RefreshDelta, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(exception.ErrMonitorPanic, "%v", r)
		}
	}()

	if delta.Any() {
		m.fanout(delta)
	}

	if ctx.Err() != nil {
		return next, false, nil
	}
	timer := time.NewTimer(m.cfg.Interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return next, false, nil
	case <-timer.C:
	}
	if ctx.Err() != nil {
		return next, false, nil
	}

	start := time.Now()
	next = m.refreshCritical(ctx)
	m.takeRequiredSnapshots(m.now())
	next = merge(next, m.refreshNoncritical(ctx))
	m.takeRequiredSnapshots(m.now())
	m.cfg.Metrics.ObserveRefresh(time.Since(start))

	m.ensureSubscribers(ctx)
	m.cfg.Metrics.IncRefreshCycle()
	return next, true, nil
}

func (m *Monitor) fanout(delta model.RefreshDelta) {
	start := time.Now()
	for _, c := range m.registeredCaches() {
		c.OnRefresh(delta)
	}
	m.cfg.Metrics.ObserveFanout(time.Since(start))

	m.listenerMu.Lock()
	listeners := make([]func(model.RefreshDelta), len(m.refreshListeners))
	copy(listeners, m.refreshListeners)
	m.listenerMu.Unlock()
	for _, fn := range listeners {
		fn(delta)
	}
}

// ensureSubscribers starts the subscriber of every started portfolio that
// lost it. It gives up for this cycle on the first failure.
func (m *Monitor) ensureSubscribers(ctx context.Context) {
	if m.cfg.Dialer == nil {
		return
	}
	for _, c := range m.registeredCaches() {
		if !c.IsStarted() || c.IsSubscribed() {
			continue
		}
		if err := c.StartSubscriber(ctx); err != nil {
			logs.Errorf("start subscriber of %s, err: %+v", c.Account(), err)
			return
		}
	}
}

func (m *Monitor) refreshCritical(ctx context.Context) model.RefreshDelta {
	var delta model.RefreshDelta

	if rows, ok := pull(m, ctx, obs.TableAccounts, func(wm *time.Time) ([]model.AccountData, error) {
		return m.source.Accounts(ctx, "", wm)
	}, &m.tables.watermarks.accounts); ok && len(rows) > 0 {
		if limit := m.cfg.AccountLimit; limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
		m.tableMu.Lock()
		m.tables.setAccounts(rows)
		m.tableMu.Unlock()
		delta.Accounts = true
	}

	if rows, ok := pull(m, ctx, obs.TablePositions, func(wm *time.Time) ([]model.SourcePosition, error) {
		return m.source.Positions(ctx, "", wm)
	}, &m.tables.watermarks.positions); ok && len(rows) > 0 {
		m.tableMu.Lock()
		m.tables.setPositions(rows)
		m.tableMu.Unlock()
		delta.Positions = true
	}

	if rows, ok := pull(m, ctx, obs.TableIndexWeights, func(wm *time.Time) ([]model.IndexWeight, error) {
		return m.source.IndexWeights(ctx, "", wm)
	}, &m.tables.watermarks.indexWeights); ok {
		m.tableMu.Lock()
		if len(rows) > 0 || m.tables.indexWeights == nil {
			m.tables.setIndexWeights(nonNil(rows))
			delta.IndexWeights = true
		}
		m.tableMu.Unlock()
	}

	var endOfDay time.Time
	if rows, ok := pull(m, ctx, obs.TableTradingSchedule, func(wm *time.Time) ([]model.TradingSchedule, error) {
		var (
			rows []model.TradingSchedule
			err  error
		)
		rows, endOfDay, err = m.source.TradingSchedule(ctx, "", wm)
		return rows, err
	}, &m.tables.watermarks.schedule); ok {
		m.tableMu.Lock()
		if len(rows) > 0 || m.tables.schedule == nil {
			m.tables.schedule = nonNil(rows)
			m.tables.endOfDay = endOfDay
			delta.TradingSchedule = true
		}
		m.tableMu.Unlock()
	}

	m.countUpdates(delta)
	return delta
}

func (m *Monitor) refreshNoncritical(ctx context.Context) model.RefreshDelta {
	var delta model.RefreshDelta

	if rows, ok := pull(m, ctx, obs.TableSnapshotIDs, func(wm *time.Time) ([]model.SnapshotID, error) {
		return m.source.SnapshotIDs(ctx, "", wm)
	}, &m.tables.watermarks.snapshotIDs); ok {
		m.tableMu.Lock()
		if len(rows) > 0 || m.tables.snapshotIDs == nil {
			m.tables.setSnapshotIDs(nonNil(rows))
			delta.SnapshotIDs = true
		}
		m.tableMu.Unlock()
	}

	today := day(m.now())
	m.tableMu.Lock()
	if !m.tables.tradesDay.Equal(today) {
		m.tables.tradesDay = today
		m.tables.watermarks.trades = time.Time{}
		m.tables.setTrades(nil)
	}
	m.tableMu.Unlock()

	if rows, ok := pull(m, ctx, obs.TableTrades, func(wm *time.Time) ([]model.Trade, error) {
		return m.source.Trades(ctx, "", today, wm)
	}, &m.tables.watermarks.trades); ok {
		m.tableMu.Lock()
		if len(rows) > 0 || m.tables.trades == nil {
			m.tables.setTrades(nonNil(rows))
			delta.Trades = true
		}
		m.tableMu.Unlock()
	}

	m.countUpdates(delta)
	return delta
}

// pull calls fetch with a copy of the watermark and advances it only on
// success. Failures are logged and reported as !ok.
func pull[T any](m *Monitor, ctx context.Context, table obs.Table, fetch func(wm *time.Time) ([]T, error), watermark *time.Time) ([]T, bool) {
	wm := *watermark
	rows, err := fetch(&wm)
	if err != nil {
		m.cfg.Metrics.IncSourceFailure(table)
		logs.Errorf("refresh %s, err: %+v", table, err)
		return nil, false
	}
	*watermark = wm
	return rows, true
}

func (m *Monitor) countUpdates(delta model.RefreshDelta) {
	flags := []struct {
		set   bool
		table obs.Table
	}{
		{delta.Accounts, obs.TableAccounts},
		{delta.Positions, obs.TablePositions},
		{delta.IndexWeights, obs.TableIndexWeights},
		{delta.TradingSchedule, obs.TableTradingSchedule},
		{delta.Trades, obs.TableTrades},
		{delta.SnapshotIDs, obs.TableSnapshotIDs},
	}
	for _, f := range flags {
		if f.set {
			m.cfg.Metrics.IncTableUpdate(f.table)
		}
	}
}

// takeRequiredSnapshots requests the scheduled snapshots that are due at now.
// Nothing is due unless the schedule's end of day falls on today.
func (m *Monitor) takeRequiredSnapshots(now time.Time) {
	if m.cfg.Snapshots == nil {
		return
	}

	type request struct {
		account string
		typ     enum.SnapshotType
	}
	var due []request

	m.tableMu.Lock()
	endOfDay := m.tables.endOfDay
	if !day(endOfDay.In(now.Location())).Equal(day(now)) {
		m.tableMu.Unlock()
		return
	}
	today := day(now)
	for i := range m.tables.schedule {
		row := &m.tables.schedule[i]
		if !row.SnapshotNeeded {
			continue
		}

		checks := []struct {
			taken *bool
			typ   enum.SnapshotType
			isDue bool
		}{
			{&row.StartOfTradingSnapshotTaken, enum.SnapshotStartOfTrading, !row.StartTradingTime.After(now)},
			{&row.EndOfTradingSnapshotTaken, enum.SnapshotEndOfTrading, !row.EndTradingTime.After(now)},
			{&row.EndOfDaySnapshotTaken, enum.SnapshotEndOfDay, now.After(endOfDay)},
		}
		for _, c := range checks {
			key := takenKey{account: row.Account, typ: c.typ, day: today}
			if _, ok := m.tables.taken[key]; ok {
				*c.taken = true
			}
			if *c.taken || !c.isDue {
				continue
			}
			*c.taken = true
			m.tables.taken[key] = struct{}{}
			due = append(due, request{account: row.Account, typ: c.typ})
		}
	}
	m.tableMu.Unlock()

	for _, r := range due {
		logs.Infof("take %s snapshot of %s", r.typ, r.account)
		if err := m.cfg.Snapshots.TakeSnapshot(r.account, r.typ); err != nil {
			logs.Errorf("request %s snapshot of %s, retry next cycle, err: %+v", r.typ, r.account, err)
			m.clearTaken(r.account, r.typ, today)
		}
	}
}

// clearTaken undoes the taken mark of a snapshot request that was refused.
func (m *Monitor) clearTaken(account string, typ enum.SnapshotType, today time.Time) {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	delete(m.tables.taken, takenKey{account: account, typ: typ, day: today})
	for i := range m.tables.schedule {
		row := &m.tables.schedule[i]
		if row.Account != account {
			continue
		}
		switch typ {
		case enum.SnapshotStartOfTrading:
			row.StartOfTradingSnapshotTaken = false
		case enum.SnapshotEndOfTrading:
			row.EndOfTradingSnapshotTaken = false
		case enum.SnapshotEndOfDay:
			row.EndOfDaySnapshotTaken = false
		}
	}
}

func day(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
