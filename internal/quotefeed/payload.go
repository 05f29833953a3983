package quotefeed

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

const (
	stateOpen   = "open"
	stateClosed = "closed"
)

// Payload is the JSON form of a tick on the wire. Absent fields are omitted.
type Payload struct {
	Symbol       string   `json:"symbol"`
	Bid          *float64 `json:"bid,omitempty"`
	Ask          *float64 `json:"ask,omitempty"`
	Last         *float64 `json:"last,omitempty"`
	Open         *float64 `json:"open,omitempty"`
	PrevClose    *float64 `json:"prevClose,omitempty"`
	Close        *float64 `json:"close,omitempty"`
	Delta        *float64 `json:"delta,omitempty"`
	Gamma        *float64 `json:"gamma,omitempty"`
	Theta        *float64 `json:"theta,omitempty"`
	Vega         *float64 `json:"vega,omitempty"`
	ImpliedVol   *float64 `json:"impliedVol,omitempty"`
	State        string   `json:"state,omitempty"`
	Subscription string   `json:"subscription,omitempty"`
}

// DecodeTick parses a wire payload into a tick without a handle.
func DecodeTick(data []byte) (model.QuoteTick, error) {
	var p Payload
	if err := sonic.ConfigFastest.Unmarshal(data, &p); err != nil {
		return model.QuoteTick{}, errors.Wrap(exception.ErrQuoteFeedBadPayload, err.Error())
	}
	return p.Tick(), nil
}

// EncodeTick renders the present fields of t as a wire payload.
func EncodeTick(t model.QuoteTick) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(NewPayload(t))
}

// Tick converts the payload into a tick.
func (p Payload) Tick() model.QuoteTick {
	t := model.QuoteTick{Symbol: p.Symbol}
	set := func(field enum.QuoteField, src *float64, dst *float64) {
		if src == nil {
			return
		}
		t.Present |= field
		*dst = *src
	}
	set(enum.QuoteBid, p.Bid, &t.Bid)
	set(enum.QuoteAsk, p.Ask, &t.Ask)
	set(enum.QuoteLast, p.Last, &t.Last)
	set(enum.QuoteOpen, p.Open, &t.Open)
	set(enum.QuotePrevClose, p.PrevClose, &t.PrevClose)
	set(enum.QuoteClose, p.Close, &t.Close)
	set(enum.QuoteDelta, p.Delta, &t.Delta)
	set(enum.QuoteGamma, p.Gamma, &t.Gamma)
	set(enum.QuoteTheta, p.Theta, &t.Theta)
	set(enum.QuoteVega, p.Vega, &t.Vega)
	set(enum.QuoteImpliedVol, p.ImpliedVol, &t.ImpliedVol)

	switch p.State {
	case stateOpen:
		t.OpenState = enum.OpenStateOpen
	case stateClosed:
		t.OpenState = enum.OpenStateClosed
	}
	if p.Subscription != "" {
		_ = t.Subscription.UnmarshalText([]byte(p.Subscription))
	}
	return t
}

// NewPayload builds the wire form of t.
func NewPayload(t model.QuoteTick) Payload {
	p := Payload{Symbol: t.Symbol}
	get := func(field enum.QuoteField, v float64) *float64 {
		if !t.Present.Has(field) {
			return nil
		}
		return &v
	}
	p.Bid = get(enum.QuoteBid, t.Bid)
	p.Ask = get(enum.QuoteAsk, t.Ask)
	p.Last = get(enum.QuoteLast, t.Last)
	p.Open = get(enum.QuoteOpen, t.Open)
	p.PrevClose = get(enum.QuotePrevClose, t.PrevClose)
	p.Close = get(enum.QuoteClose, t.Close)
	p.Delta = get(enum.QuoteDelta, t.Delta)
	p.Gamma = get(enum.QuoteGamma, t.Gamma)
	p.Theta = get(enum.QuoteTheta, t.Theta)
	p.Vega = get(enum.QuoteVega, t.Vega)
	p.ImpliedVol = get(enum.QuoteImpliedVol, t.ImpliedVol)

	switch t.OpenState {
	case enum.OpenStateOpen:
		p.State = stateOpen
	case enum.OpenStateClosed:
		p.State = stateClosed
	}
	p.Subscription = t.Subscription.String()
	return p
}
