package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"positionmonitor/internal/model/enum"
)

const (
	// TradeTypeDividend marks trades that book a received dividend.
	TradeTypeDividend = "RecDiv"

	benchmarkTotalReturnSPX = "SPXT"
	benchmarkSPX            = "SPX"
)

// AccountData is the per-account metadata row.
type AccountData struct {
	Account                  string    `gorm:"column:acct_name" json:"account"`
	Benchmark                string    `gorm:"column:benchmark" json:"benchmark"`
	IsIndex                  bool      `gorm:"column:is_index" json:"isIndex"`
	MinDelta                 float64   `gorm:"column:min_delta" json:"minDelta"`
	MaxDelta                 float64   `gorm:"column:max_delta" json:"maxDelta"`
	LowerAdjustmentPerMinute float64   `gorm:"column:lower_adjustment_per_minute" json:"lowerAdjustmentPerMinute"`
	UpperAdjustmentPerMinute float64   `gorm:"column:upper_adjustment_per_minute" json:"upperAdjustmentPerMinute"`
	StartOfDay               time.Time `gorm:"column:start_of_day" json:"startOfDay"`
	MinutesInDay             float64   `gorm:"column:minutes_in_day" json:"minutesInDay"`
}

// BenchmarkSymbol returns the quotable benchmark symbol. The total return
// SPX benchmark is quoted through SPX.
func (a AccountData) BenchmarkSymbol() string {
	if a.Benchmark == benchmarkTotalReturnSPX {
		return benchmarkSPX
	}
	return a.Benchmark
}

// ElapsedMinutes returns the trading minutes elapsed since StartOfDay,
// compared by time of day and capped at MinutesInDay.
func (a AccountData) ElapsedMinutes(now time.Time) float64 {
	elapsed := timeOfDay(now) - timeOfDay(a.StartOfDay)
	minutes := elapsed.Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return math.Min(minutes, a.MinutesInDay)
}

// AdjustedMinDelta is the lower delta bound after time decay.
func (a AccountData) AdjustedMinDelta(now time.Time) float64 {
	return a.MinDelta + a.LowerAdjustmentPerMinute*a.ElapsedMinutes(now)
}

// AdjustedMaxDelta is the upper delta bound after time decay.
func (a AccountData) AdjustedMaxDelta(now time.Time) float64 {
	return a.MaxDelta - a.UpperAdjustmentPerMinute*a.ElapsedMinutes(now)
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// Trade is an executed trade or booking of an account.
type Trade struct {
	ID               int64           `gorm:"column:trade_id" json:"id"`
	Account          string          `gorm:"column:acct_name" json:"account"`
	Symbol           string          `gorm:"column:symbol" json:"symbol"`
	TradeDate        time.Time       `gorm:"column:trade_date" json:"tradeDate"`
	TradeType        string          `gorm:"column:trade_type" json:"tradeType"`
	Quantity         int             `gorm:"column:quantity" json:"quantity"`
	Price            decimal.Decimal `gorm:"column:price" json:"price"`
	ChangeInPosition int             `gorm:"column:change_in_position" json:"changeInPosition"`
	ChangeInCost     decimal.Decimal `gorm:"column:change_in_cost" json:"changeInCost"`
}

// DividendsReceived sums the dividend bookings among trades.
func DividendsReceived(trades []Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if t.TradeType == TradeTypeDividend {
			total = total.Sub(t.ChangeInCost)
		}
	}
	return total
}

// TradingSchedule is the per-account trading window and snapshot bookkeeping.
type TradingSchedule struct {
	Account                     string    `gorm:"column:acct_name" json:"account"`
	StartTradingTime            time.Time `gorm:"column:start_trading_time" json:"startTradingTime"`
	EndTradingTime              time.Time `gorm:"column:end_trading_time" json:"endTradingTime"`
	SnapshotNeeded              bool      `gorm:"column:snapshot_needed" json:"snapshotNeeded"`
	StartOfTradingSnapshotTaken bool      `gorm:"column:start_of_trading_snapshot_taken" json:"startOfTradingSnapshotTaken"`
	EndOfTradingSnapshotTaken   bool      `gorm:"column:end_of_trading_snapshot_taken" json:"endOfTradingSnapshotTaken"`
	EndOfDaySnapshotTaken       bool      `gorm:"column:end_of_day_snapshot_taken" json:"endOfDaySnapshotTaken"`
}

// SnapshotID references a stored portfolio snapshot.
type SnapshotID struct {
	ID           int64             `gorm:"column:snapshot_id" json:"id"`
	Account      string            `gorm:"column:acct_name" json:"account"`
	SnapshotType enum.SnapshotType `gorm:"-" json:"snapshotType"`
	TypeText     string            `gorm:"column:snapshot_type" json:"-"`
	TakenAt      time.Time         `gorm:"column:taken_at" json:"takenAt"`
}

// PortfolioSnapshot is a point-in-time copy of an account's portfolio.
type PortfolioSnapshot struct {
	ID                int64             `json:"id"`
	RequestID         uuid.UUID         `json:"requestId"`
	Account           string            `json:"account"`
	SnapshotType      enum.SnapshotType `json:"snapshotType"`
	TakenAt           time.Time         `json:"takenAt"`
	Benchmark         string            `json:"benchmark"`
	DividendsReceived decimal.Decimal   `json:"dividendsReceived"`
	GrossExposure     int64             `json:"grossExposure"`
	NettedExposure    int64             `json:"nettedExposure"`
	Positions         []Position        `json:"positions"`
	Indices           []IndexRow        `json:"indices"`
}

// RefreshDelta flags the table categories that changed in the latest poll.
type RefreshDelta struct {
	Positions       bool
	Accounts        bool
	IndexWeights    bool
	Trades          bool
	TradingSchedule bool
	SnapshotIDs     bool
}

// FullRefresh returns a delta with every category set.
func FullRefresh() RefreshDelta {
	return RefreshDelta{
		Positions:       true,
		Accounts:        true,
		IndexWeights:    true,
		Trades:          true,
		TradingSchedule: true,
		SnapshotIDs:     true,
	}
}

// Any reports whether any category changed.
func (d RefreshDelta) Any() bool {
	return d.Positions || d.Accounts || d.IndexWeights || d.Trades || d.TradingSchedule || d.SnapshotIDs
}
