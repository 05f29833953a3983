package model

import (
	"math"
	"time"

	"positionmonitor/internal/model/enum"
)

// PositionKey identifies a position row.
type PositionKey struct {
	Account string
	Symbol  string
}

// SourcePosition is a position row as delivered by the data source.
type SourcePosition struct {
	Account                   string          `gorm:"column:acct_name"`
	Symbol                    string          `gorm:"column:symbol"`
	UnderlyingSymbol          string          `gorm:"column:underlying_symbol"`
	OptionType                enum.OptionType `gorm:"-"`
	OptionTypeText            string          `gorm:"column:option_type"`
	StrikePrice               float64         `gorm:"column:strike_price"`
	ExpirationDate            time.Time       `gorm:"column:expiration_date"`
	Multiplier                float64         `gorm:"column:multiplier"`
	AssociatedIndexMultiplier float64         `gorm:"column:associated_index_multiplier"`
	IsStock                   bool            `gorm:"column:is_stock"`
	IsOption                  bool            `gorm:"column:is_option"`
	IsFuture                  bool            `gorm:"column:is_future"`
	SODPosition               int             `gorm:"column:sod_position"`
	SODPrice                  NullFloat       `gorm:"column:sod_price"`
	SODMarketValue            float64         `gorm:"column:sod_market_value"`
	CurrentPosition           int             `gorm:"column:current_position"`
	CurrentCost               float64         `gorm:"column:current_cost"`
	ChangeInPosition          int             `gorm:"column:change_in_position"`
	ChangeInCost              float64         `gorm:"column:change_in_cost"`
}

func (s SourcePosition) Key() PositionKey {
	return PositionKey{Account: s.Account, Symbol: s.Symbol}
}

// Position is one row of an account's portfolio table.
type Position struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol"`

	UnderlyingSymbol string          `json:"underlyingSymbol"`
	OptionType       enum.OptionType `json:"optionType"`
	StrikePrice      float64         `json:"strikePrice"`
	ExpirationDate   time.Time       `json:"expirationDate"`
	Multiplier       int             `json:"multiplier"`
	PriceMultiplier  float64         `json:"priceMultiplier"`
	IsStock          bool            `json:"isStock"`
	IsOption         bool            `json:"isOption"`
	IsFuture         bool            `json:"isFuture"`

	SODPosition      int       `json:"sodPosition"`
	SODPrice         NullFloat `json:"sodPrice"`
	SODMarketValue   float64   `json:"sodMarketValue"`
	CurrentPosition  int       `json:"currentPosition"`
	CurrentCost      float64   `json:"currentCost"`
	ChangeInPosition int       `json:"changeInPosition"`
	ChangeInCost     float64   `json:"changeInCost"`

	UpdateCounter     int64 `json:"updateCounter"`
	NettingAdjustment int   `json:"nettingAdjustment"`

	Quote
}

// NewPosition creates a row from a source row. Contract descriptors are
// fixed from here on.
func NewPosition(src SourcePosition) *Position {
	p := &Position{
		Account:          src.Account,
		Symbol:           src.Symbol,
		UnderlyingSymbol: src.UnderlyingSymbol,
		OptionType:       src.OptionType,
		StrikePrice:      src.StrikePrice,
		ExpirationDate:   src.ExpirationDate,
		Multiplier:       int(math.Round(src.Multiplier * src.AssociatedIndexMultiplier)),
		PriceMultiplier:  src.Multiplier,
		IsStock:          src.IsStock,
		IsOption:         src.IsOption,
		IsFuture:         src.IsFuture,
	}
	if p.OptionType == enum.OptionNone && src.OptionTypeText != "" {
		p.OptionType = enum.ParseOptionType(src.OptionTypeText)
	}
	p.Subscription = enum.SubscriptionUnsubscribed
	p.RefreshQuantities(src)
	return p
}

// RefreshQuantities copies the quantity fields of src into p.
func (p *Position) RefreshQuantities(src SourcePosition) {
	p.SODPosition = src.SODPosition
	p.SODPrice = src.SODPrice
	p.SODMarketValue = src.SODMarketValue
	p.CurrentPosition = src.CurrentPosition
	p.CurrentCost = src.CurrentCost
	p.ChangeInPosition = src.ChangeInPosition
	p.ChangeInCost = src.ChangeInCost
}

// Kind returns the feed instrument kind of the row. ok is false when no
// instrument flag is set; such rows are quoted as stocks.
func (p *Position) Kind() (kind enum.InstrumentKind, ok bool) {
	switch {
	case p.IsStock:
		return enum.InstrumentStock, true
	case p.IsOption:
		return enum.InstrumentOption, true
	case p.IsFuture:
		return enum.InstrumentFuture, true
	default:
		return enum.InstrumentStock, false
	}
}

// IsDerivative reports whether the row takes part in netting.
func (p *Position) IsDerivative() bool {
	return p.IsOption || p.IsFuture
}

// NeedsQuote reports whether the row must be subscribed while its cache is live.
// Stocks are always subscribed since options on them need the underlying's quote.
func (p *Position) NeedsQuote() bool {
	return p.CurrentPosition != 0 || p.SODPosition != 0 || p.IsStock
}

// NetPosition is the current position after netting.
func (p *Position) NetPosition() int {
	return p.CurrentPosition + p.NettingAdjustment
}

// CurrentPrice derives the row's price from its quote and source fields.
func (p *Position) CurrentPrice() float64 {
	if p.Closed {
		if v, ok := p.ClosingPrice.Get(); ok {
			return v
		}
	}
	if p.IsStock || p.IsFuture {
		if v, ok := p.Last.Get(); ok {
			return v
		}
	}
	if v, ok := p.marketPrice(); ok {
		return v
	}
	if v, ok := p.PrevClose.Get(); ok {
		return v
	}
	return p.SODPrice.Or(0)
}

// IndexRow is a benchmark or constituent index row of an account.
type IndexRow struct {
	Account string  `json:"account"`
	Symbol  string  `json:"symbol"`
	Weight  float64 `json:"weight"`
	IsIndex bool    `json:"isIndex"`

	Quote
}

// NewIndexRow creates an index row. Index rows never absorb bid, ask or greeks.
func NewIndexRow(w IndexWeight) *IndexRow {
	r := &IndexRow{
		Account: w.Account,
		Symbol:  w.Symbol,
		Weight:  w.Weight,
		IsIndex: w.IsIndex,
	}
	r.masked = enum.QuoteBid | enum.QuoteAsk | enum.QuoteGreeks
	r.Subscription = enum.SubscriptionUnsubscribed
	return r
}

// Kind returns the feed instrument kind of the row.
func (r *IndexRow) Kind() enum.InstrumentKind {
	if r.IsIndex {
		return enum.InstrumentIndex
	}
	return enum.InstrumentStock
}

// CurrentPrice is the closing price once closed, otherwise the last price.
func (r *IndexRow) CurrentPrice() float64 {
	if r.Closed {
		if v, ok := r.ClosingPrice.Get(); ok {
			return v
		}
	}
	return r.Last.Or(0)
}

// IndexWeight is an index constituent row as delivered by the data source.
type IndexWeight struct {
	Account string  `gorm:"column:acct_name"`
	Symbol  string  `gorm:"column:symbol"`
	Weight  float64 `gorm:"column:weight"`
	IsIndex bool    `gorm:"column:is_index"`
}
