package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/yanun0323/errors"

	"positionmonitor/internal/model"
	"positionmonitor/internal/portfolio"
)

// AccountNames lists the monitored accounts. Before monitoring starts the
// names are read from the data source.
func (m *Monitor) AccountNames(ctx context.Context) ([]string, error) {
	if m.IsMonitoring() {
		caches := m.AllAccountPortfolios()
		names := make([]string, 0, len(caches))
		for _, c := range caches {
			names = append(names, c.Account())
		}
		return names, nil
	}

	source := m.dataSource()
	if source == nil {
		return nil, nil
	}
	rows, err := source.Accounts(ctx, "", nil)
	if err != nil {
		return nil, errors.Wrap(err, "query accounts")
	}
	if limit := m.cfg.AccountLimit; limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Account)
	}
	return names, nil
}

func (m *Monitor) AccountPortfolio(account string) (*portfolio.Cache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.portfolios[account]
	return c, ok
}

// AllAccountPortfolios returns every portfolio ordered by account name.
func (m *Monitor) AllAccountPortfolios() []*portfolio.Cache {
	m.mu.RLock()
	out := make([]*portfolio.Cache, 0, len(m.portfolios))
	for _, c := range m.portfolios {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Account() < out[j].Account()
	})
	return out
}

func (m *Monitor) CurrentPrice(account, symbol string) (float64, bool) {
	c, ok := m.AccountPortfolio(account)
	if !ok {
		return 0, false
	}
	return c.CurrentPrice(symbol)
}

// AccountTrades returns the trades of account on date. Today's trades come
// from the portfolio and are empty for an account that is not monitored;
// any other day is queried. Nothing is returned before Initialize.
func (m *Monitor) AccountTrades(ctx context.Context, account string, date time.Time) ([]model.Trade, error) {
	if day(date).Equal(day(m.now())) {
		if c, ok := m.AccountPortfolio(account); ok {
			return c.Trades(), nil
		}
		return []model.Trade{}, nil
	}

	source := m.dataSource()
	if source == nil {
		return []model.Trade{}, nil
	}
	trades, err := source.Trades(ctx, account, day(date), nil)
	if err != nil {
		return nil, errors.Wrap(err, "query trades").With("account", account)
	}
	return trades, nil
}

func (m *Monitor) TradingScheduleRows() []model.TradingSchedule {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	return clone(m.tables.schedule)
}

// NextTimeSlice returns the next trading boundary of account after now.
func (m *Monitor) NextTimeSlice(account string) (time.Time, bool) {
	now := m.now()

	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	for _, row := range m.tables.schedule {
		if row.Account != account {
			continue
		}
		if row.StartTradingTime.After(now) {
			return row.StartTradingTime, true
		}
		if row.EndTradingTime.After(now) {
			return row.EndTradingTime, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

func (m *Monitor) SnapshotsForAccount(account string) []model.SnapshotID {
	return m.SnapshotIDsFor(account)
}

// PortfolioSnapshot loads a stored snapshot. It returns nil before Initialize.
func (m *Monitor) PortfolioSnapshot(ctx context.Context, id int64) (*model.PortfolioSnapshot, error) {
	source := m.dataSource()
	if source == nil {
		return nil, nil
	}
	snap, err := source.PortfolioSnapshot(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "query snapshot").With("id", id)
	}
	return &snap, nil
}

func (m *Monitor) dataSource() DataSource {
	m.sourceMu.RLock()
	defer m.sourceMu.RUnlock()
	return m.source
}
