package source

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

type snapshotRecord struct {
	ID                int64           `gorm:"column:snapshot_id;primaryKey;autoIncrement"`
	RequestID         string          `gorm:"column:request_id"`
	Account           string          `gorm:"column:acct_name"`
	SnapshotType      string          `gorm:"column:snapshot_type"`
	TakenAt           time.Time       `gorm:"column:taken_at"`
	Benchmark         string          `gorm:"column:benchmark"`
	DividendsReceived decimal.Decimal `gorm:"column:dividends_received"`
	GrossExposure     int64           `gorm:"column:gross_exposure"`
	NettedExposure    int64           `gorm:"column:netted_exposure"`
	Payload           []byte          `gorm:"column:payload"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
}

func (snapshotRecord) TableName() string {
	return tableSnapshots
}

type snapshotPayload struct {
	Positions []model.Position `json:"positions"`
	Indices   []model.IndexRow `json:"indices"`
}

var takenFlag = map[enum.SnapshotType]string{
	enum.SnapshotStartOfTrading: "start_of_trading_snapshot_taken",
	enum.SnapshotEndOfTrading:   "end_of_trading_snapshot_taken",
	enum.SnapshotEndOfDay:       "end_of_day_snapshot_taken",
}

// InsertPortfolioSnapshot stores snap and marks it taken in the account's
// trading schedule. It returns the stored id.
func (s *Store) InsertPortfolioSnapshot(ctx context.Context, snap model.PortfolioSnapshot) (int64, error) {
	flag, ok := takenFlag[snap.SnapshotType]
	if !ok {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "snapshot type: %d", snap.SnapshotType)
	}

	payload, err := sonic.Marshal(snapshotPayload{Positions: snap.Positions, Indices: snap.Indices})
	if err != nil {
		return 0, errors.Wrap(err, "marshal snapshot payload")
	}

	now := s.now()
	record := snapshotRecord{
		RequestID:         snap.RequestID.String(),
		Account:           snap.Account,
		SnapshotType:      snap.SnapshotType.String(),
		TakenAt:           snap.TakenAt,
		Benchmark:         snap.Benchmark,
		DividendsReceived: snap.DividendsReceived,
		GrossExposure:     snap.GrossExposure,
		NettedExposure:    snap.NettedExposure,
		Payload:           payload,
		UpdatedAt:         now,
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return errors.Wrap(err, "insert snapshot")
		}
		if err := tx.Table(tableSchedule).
			Where("acct_name = ?", snap.Account).
			Updates(map[string]any{flag: true, "updated_at": now}).Error; err != nil {
			return errors.Wrap(err, "mark snapshot taken")
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "store snapshot").With("account", snap.Account)
	}
	return record.ID, nil
}

// PortfolioSnapshot loads a stored snapshot by id.
func (s *Store) PortfolioSnapshot(ctx context.Context, id int64) (model.PortfolioSnapshot, error) {
	var record snapshotRecord
	if err := s.db(ctx).Where("snapshot_id = ?", id).Take(&record).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return model.PortfolioSnapshot{}, errors.Wrapf(exception.ErrSourceNotFound, "snapshot id: %d", id)
		}
		return model.PortfolioSnapshot{}, errors.Wrap(err, "query snapshot")
	}

	var payload snapshotPayload
	if len(record.Payload) > 0 {
		if err := sonic.Unmarshal(record.Payload, &payload); err != nil {
			return model.PortfolioSnapshot{}, errors.Wrap(err, "unmarshal snapshot payload").With("id", id)
		}
	}

	requestID, _ := uuid.Parse(record.RequestID)
	return model.PortfolioSnapshot{
		ID:                record.ID,
		RequestID:         requestID,
		Account:           record.Account,
		SnapshotType:      enum.ParseSnapshotType(record.SnapshotType),
		TakenAt:           record.TakenAt,
		Benchmark:         record.Benchmark,
		DividendsReceived: record.DividendsReceived,
		GrossExposure:     record.GrossExposure,
		NettedExposure:    record.NettedExposure,
		Positions:         payload.Positions,
		Indices:           payload.Indices,
	}, nil
}
