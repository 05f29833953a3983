package monitor

import (
	"time"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
)

// tables are the master copies of every table category. A nil slice means
// the category was never loaded.
type tables struct {
	accounts     []model.AccountData
	accountIndex map[string]model.AccountData

	positions          []model.SourcePosition
	positionsByAccount map[string][]model.SourcePosition

	indexWeights  []model.IndexWeight
	weightsByAcct map[string][]model.IndexWeight

	schedule []model.TradingSchedule
	endOfDay time.Time

	trades        []model.Trade
	tradesDay     time.Time
	tradesByAcct  map[string][]model.Trade
	snapshotIDs   []model.SnapshotID
	snapshotsAcct map[string][]model.SnapshotID

	watermarks watermarks

	// taken remembers snapshots requested by this process so a schedule
	// reload with stale flags does not request them again.
	taken map[takenKey]struct{}
}

type watermarks struct {
	accounts     time.Time
	positions    time.Time
	indexWeights time.Time
	schedule     time.Time
	trades       time.Time
	snapshotIDs  time.Time
}

type takenKey struct {
	account string
	typ     enum.SnapshotType
	day     time.Time
}

func newTables() tables {
	return tables{
		accountIndex:       make(map[string]model.AccountData),
		positionsByAccount: make(map[string][]model.SourcePosition),
		weightsByAcct:      make(map[string][]model.IndexWeight),
		tradesByAcct:       make(map[string][]model.Trade),
		snapshotsAcct:      make(map[string][]model.SnapshotID),
		taken:              make(map[takenKey]struct{}),
	}
}

func (t *tables) setAccounts(rows []model.AccountData) {
	t.accounts = rows
	t.accountIndex = make(map[string]model.AccountData, len(rows))
	for _, r := range rows {
		t.accountIndex[r.Account] = r
	}
}

func (t *tables) setPositions(rows []model.SourcePosition) {
	t.positions = rows
	t.positionsByAccount = groupBy(rows, func(r model.SourcePosition) string { return r.Account })
}

func (t *tables) setIndexWeights(rows []model.IndexWeight) {
	t.indexWeights = rows
	t.weightsByAcct = groupBy(rows, func(r model.IndexWeight) string { return r.Account })
}

func (t *tables) setTrades(rows []model.Trade) {
	t.trades = rows
	t.tradesByAcct = groupBy(rows, func(r model.Trade) string { return r.Account })
}

func (t *tables) setSnapshotIDs(rows []model.SnapshotID) {
	t.snapshotIDs = rows
	t.snapshotsAcct = groupBy(rows, func(r model.SnapshotID) string { return r.Account })
}

func groupBy[T any](rows []T, key func(T) string) map[string][]T {
	out := make(map[string][]T)
	for _, r := range rows {
		k := key(r)
		out[k] = append(out[k], r)
	}
	return out
}

func (m *Monitor) accountRows() []model.AccountData {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()

	out := make([]model.AccountData, len(m.tables.accounts))
	copy(out, m.tables.accounts)
	return out
}

func (m *Monitor) PositionsFor(account string) []model.SourcePosition {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	return clone(m.tables.positionsByAccount[account])
}

func (m *Monitor) AccountDataFor(account string) (model.AccountData, bool) {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	a, ok := m.tables.accountIndex[account]
	return a, ok
}

func (m *Monitor) IndexWeightsFor(account string) []model.IndexWeight {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	return clone(m.tables.weightsByAcct[account])
}

func (m *Monitor) TradesFor(account string) []model.Trade {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	return clone(m.tables.tradesByAcct[account])
}

func (m *Monitor) SnapshotIDsFor(account string) []model.SnapshotID {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	return clone(m.tables.snapshotsAcct[account])
}

func clone[T any](rows []T) []T {
	if rows == nil {
		return nil
	}
	out := make([]T, len(rows))
	copy(out, rows)
	return out
}
