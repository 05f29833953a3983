package model

import (
	"time"

	"positionmonitor/internal/model/enum"
)

// QuoteTick is one partial quote update delivered by the feed. Only the
// fields flagged in Present carry a value.
type QuoteTick struct {
	Symbol       string
	Present      enum.QuoteField
	OpenState    enum.OpenState
	Subscription enum.SubscriptionStatus

	Bid        float64
	Ask        float64
	Last       float64
	Open       float64
	PrevClose  float64
	Close      float64
	Delta      float64
	Gamma      float64
	Theta      float64
	Vega       float64
	ImpliedVol float64

	// Handle is the value passed to Subscribe for this symbol.
	Handle any
}

// Greeks are the option risk sensitivities carried with a quote.
type Greeks struct {
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Theta      float64 `json:"theta"`
	Vega       float64 `json:"vega"`
	ImpliedVol float64 `json:"impliedVol"`
}

// Quote holds the live market fields shared by position and index rows.
type Quote struct {
	Bid          NullFloat               `json:"bid"`
	Ask          NullFloat               `json:"ask"`
	Last         NullFloat               `json:"last"`
	Open         NullFloat               `json:"open"`
	PrevClose    NullFloat               `json:"prevClose"`
	ClosingPrice NullFloat               `json:"closingPrice"`
	Closed       bool                    `json:"closed"`
	Greeks       Greeks                  `json:"greeks"`
	UpdateTime   time.Time               `json:"updateTime"`
	Subscription enum.SubscriptionStatus `json:"subscription"`

	// masked fields are never absorbed from ticks.
	masked enum.QuoteField
}

// Apply merges the present fields of t into q and reports whether any field
// was written. UpdateTime is only touched when something was written.
func (q *Quote) Apply(t QuoteTick, now time.Time) bool {
	written := false
	if t.Subscription != enum.SubscriptionUnchanged {
		q.Subscription = t.Subscription
		written = true
	}

	switch t.OpenState {
	case enum.OpenStateClosed:
		q.Closed = true
		written = true
	case enum.OpenStateOpen:
		q.Closed = false
		written = true
	}

	fields := t.Present &^ q.masked
	if fields.Has(enum.QuoteOpen) {
		q.Open = Float(t.Open)
		written = true
	}
	if fields.Has(enum.QuotePrevClose) {
		q.PrevClose = Float(t.PrevClose)
		written = true
	}

	if q.Closed {
		if fields.Has(enum.QuoteClose) {
			q.ClosingPrice = Float(t.Close)
			written = true
		}
	} else {
		if q.applyLive(fields, t) {
			written = true
		}
	}

	if written {
		q.UpdateTime = now
	}
	return written
}

func (q *Quote) applyLive(fields enum.QuoteField, t QuoteTick) bool {
	written := false
	if fields.Has(enum.QuoteLast) {
		q.Last = Float(t.Last)
		written = true
	}
	if fields.Has(enum.QuoteBid) {
		q.Bid = Float(t.Bid)
		written = true
	}
	if fields.Has(enum.QuoteAsk) {
		q.Ask = Float(t.Ask)
		written = true
	}
	if fields.Has(enum.QuoteDelta) {
		q.Greeks.Delta = t.Delta
		written = true
	}
	if fields.Has(enum.QuoteGamma) {
		q.Greeks.Gamma = t.Gamma
		written = true
	}
	if fields.Has(enum.QuoteTheta) {
		q.Greeks.Theta = t.Theta
		written = true
	}
	if fields.Has(enum.QuoteVega) {
		q.Greeks.Vega = t.Vega
		written = true
	}
	if fields.Has(enum.QuoteImpliedVol) {
		q.Greeks.ImpliedVol = t.ImpliedVol
		written = true
	}
	return written
}

// marketPrice resolves the shared part of the current-price rule for rows
// that quote a two-sided market.
func (q *Quote) marketPrice() (float64, bool) {
	ask, ok := q.Ask.Get()
	if !ok {
		return 0, false
	}
	bid := q.Bid.Or(0)
	if last, ok := q.Last.Get(); ok {
		return clamp(last, bid, ask), true
	}
	if prev, ok := q.PrevClose.Get(); ok {
		return clamp(prev, bid, ask), true
	}
	return (bid + ask) / 2, true
}

func clamp(v, bid, ask float64) float64 {
	if v <= bid {
		return bid
	}
	if v >= ask {
		return ask
	}
	return v
}
