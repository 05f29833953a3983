// Package source reads the monitor's tables from the relational store.
//
// Every table carries an updated_at column. A table call compares the latest
// updated_at with the caller's watermark and only reads rows when the table
// moved past it.
package source

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

const (
	tableAccounts     = "accounts"
	tablePositions    = "positions"
	tableIndexWeights = "index_weights"
	tableSchedule     = "trading_schedule"
	tableTradingDay   = "trading_day"
	tableTrades       = "trades"
	tableSnapshots    = "portfolio_snapshots"
)

// DB is satisfied by pkg/conn.Client.
type DB interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error
}

// Store implements the monitor's data source on gorm.
type Store struct {
	conn DB
	now  func() time.Time
}

func New(conn DB) (*Store, error) {
	if conn == nil || conn.DB() == nil {
		return nil, exception.ErrSourceNilDB
	}
	return &Store{conn: conn, now: time.Now}, nil
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.conn.DB().WithContext(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *Store) Accounts(ctx context.Context, account string, watermark *time.Time) ([]model.AccountData, error) {
	return fetch[model.AccountData](s.db(ctx), tableAccounts, byAccount(account), watermark)
}

func (s *Store) Positions(ctx context.Context, account string, watermark *time.Time) ([]model.SourcePosition, error) {
	rows, err := fetch[model.SourcePosition](s.db(ctx), tablePositions, byAccount(account), watermark)
	for i := range rows {
		rows[i].OptionType = enum.ParseOptionType(rows[i].OptionTypeText)
	}
	return rows, err
}

func (s *Store) IndexWeights(ctx context.Context, account string, watermark *time.Time) ([]model.IndexWeight, error) {
	return fetch[model.IndexWeight](s.db(ctx), tableIndexWeights, byAccount(account), watermark)
}

// TradingSchedule also returns the end of the current trading day.
func (s *Store) TradingSchedule(ctx context.Context, account string, watermark *time.Time) ([]model.TradingSchedule, time.Time, error) {
	rows, err := fetch[model.TradingSchedule](s.db(ctx), tableSchedule, byAccount(account), watermark)
	if err != nil || rows == nil {
		return rows, time.Time{}, err
	}

	var endOfDay sql.NullTime
	err = s.db(ctx).Table(tableTradingDay).
		Select("end_of_day").
		Order("trade_date desc").
		Limit(1).
		Row().
		Scan(&endOfDay)
	if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, errors.Wrap(err, "query end of day")
	}
	return rows, endOfDay.Time, nil
}

// Trades returns the trades booked on date.
func (s *Store) Trades(ctx context.Context, account string, date time.Time, watermark *time.Time) ([]model.Trade, error) {
	y, m, d := date.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	to := from.AddDate(0, 0, 1)

	return fetch[model.Trade](s.db(ctx), tableTrades, func(q *gorm.DB) *gorm.DB {
		return byAccount(account)(q).Where("trade_date >= ? AND trade_date < ?", from, to)
	}, watermark)
}

func (s *Store) SnapshotIDs(ctx context.Context, account string, watermark *time.Time) ([]model.SnapshotID, error) {
	rows, err := fetch[model.SnapshotID](s.db(ctx), tableSnapshots, byAccount(account), watermark, func(q *gorm.DB) *gorm.DB {
		return q.Select("snapshot_id", "acct_name", "snapshot_type", "taken_at").Order("snapshot_id")
	})
	for i := range rows {
		rows[i].SnapshotType = enum.ParseSnapshotType(rows[i].TypeText)
	}
	return rows, err
}

func byAccount(account string) func(q *gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if account == "" {
			return q
		}
		return q.Where("acct_name = ?", account)
	}
}

// fetch reads table when its latest updated_at is past watermark and then
// advances watermark. It returns nil rows when the table did not move. A nil
// watermark always reads. read scopes only apply to the row query.
func fetch[T any](db *gorm.DB, table string, scope func(*gorm.DB) *gorm.DB, watermark *time.Time, read ...func(*gorm.DB) *gorm.DB) ([]T, error) {
	if watermark != nil {
		var latest sql.NullTime
		err := scope(db.Table(table)).
			Select("updated_at").
			Order("updated_at desc").
			Limit(1).
			Row().
			Scan(&latest)
		if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(err, "query watermark").With("table", table)
		}

		if !latest.Valid {
			if watermark.IsZero() {
				return []T{}, nil
			}
			return nil, nil
		}
		if !latest.Time.After(*watermark) {
			return nil, nil
		}
		*watermark = latest.Time
	}

	q := scope(db.Table(table))
	for _, fn := range read {
		q = fn(q)
	}
	rows := []T{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query rows").With("table", table)
	}
	return rows, nil
}
