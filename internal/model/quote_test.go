package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionmonitor/internal/model/enum"
)

func TestPositionCurrentPrice(t *testing.T) {
	testCases := []struct {
		desc string
		pos  Position
		want float64
	}{
		{
			desc: "closed with closing price wins over everything",
			pos: Position{IsOption: true, Quote: Quote{
				Closed: true, ClosingPrice: Float(101.5),
				Last: Float(99), Bid: Float(98), Ask: Float(100), PrevClose: Float(97),
			}},
			want: 101.5,
		},
		{
			desc: "closed without closing price falls through",
			pos: Position{IsStock: true, Quote: Quote{
				Closed: true, Last: Float(42),
			}},
			want: 42,
		},
		{
			desc: "stock uses last outside the market",
			pos: Position{IsStock: true, Quote: Quote{
				Last: Float(10), Bid: Float(11), Ask: Float(12),
			}},
			want: 10,
		},
		{
			desc: "future uses last",
			pos: Position{IsFuture: true, Quote: Quote{
				Last: Float(2000.25), Bid: Float(1999), Ask: Float(2001),
			}},
			want: 2000.25,
		},
		{
			desc: "option last inside band",
			pos: Position{IsOption: true, Quote: Quote{
				Last: Float(5.0), Bid: Float(4.8), Ask: Float(5.2),
			}},
			want: 5.0,
		},
		{
			desc: "option last below bid clamps to bid",
			pos: Position{IsOption: true, Quote: Quote{
				Last: Float(4.5), Bid: Float(4.8), Ask: Float(5.2),
			}},
			want: 4.8,
		},
		{
			desc: "option last above ask clamps to ask",
			pos: Position{IsOption: true, Quote: Quote{
				Last: Float(5.9), Bid: Float(4.8), Ask: Float(5.2),
			}},
			want: 5.2,
		},
		{
			desc: "option prev close clamped when no last",
			pos: Position{IsOption: true, Quote: Quote{
				PrevClose: Float(4.0), Bid: Float(4.8), Ask: Float(5.2),
			}},
			want: 4.8,
		},
		{
			desc: "option prev close inside band",
			pos: Position{IsOption: true, Quote: Quote{
				PrevClose: Float(5.1), Bid: Float(4.8), Ask: Float(5.2),
			}},
			want: 5.1,
		},
		{
			desc: "midpoint without last or prev close",
			pos: Position{IsOption: true, Quote: Quote{
				Bid: Float(4.8), Ask: Float(5.2),
			}},
			want: 5.0,
		},
		{
			desc: "missing bid counts as zero",
			pos: Position{IsOption: true, Quote: Quote{
				Ask: Float(0.2),
			}},
			want: 0.1,
		},
		{
			desc: "stock without last but with market uses band rule",
			pos: Position{IsStock: true, Quote: Quote{
				PrevClose: Float(30), Bid: Float(31), Ask: Float(32),
			}},
			want: 31,
		},
		{
			desc: "prev close without market",
			pos: Position{IsOption: true, Quote: Quote{
				PrevClose: Float(3.3), Bid: Float(3.0),
			}},
			want: 3.3,
		},
		{
			desc: "sod price fallback",
			pos: Position{IsOption: true, SODPrice: Float(7.7), Quote: Quote{
				Last: Float(8),
			}},
			want: 7.7,
		},
		{
			desc: "zero when nothing known",
			pos:  Position{IsOption: true},
			want: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.pos.CurrentPrice(), 1e-9)
		})
	}
}

func TestIndexRowCurrentPrice(t *testing.T) {
	row := NewIndexRow(IndexWeight{Account: "A", Symbol: "SPX", IsIndex: true})
	assert.Equal(t, 0.0, row.CurrentPrice())

	row.Last = Float(4500)
	assert.Equal(t, 4500.0, row.CurrentPrice())

	row.Closed = true
	assert.Equal(t, 4500.0, row.CurrentPrice())

	row.ClosingPrice = Float(4510)
	assert.Equal(t, 4510.0, row.CurrentPrice())
}

func TestPositionKind(t *testing.T) {
	testCases := []struct {
		desc string
		pos  Position
		kind enum.InstrumentKind
		ok   bool
	}{
		{"stock", Position{IsStock: true}, enum.InstrumentStock, true},
		{"option", Position{IsOption: true}, enum.InstrumentOption, true},
		{"future", Position{IsFuture: true}, enum.InstrumentFuture, true},
		{"no flag quotes as stock", Position{CurrentPosition: 5}, enum.InstrumentStock, false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			kind, ok := tc.pos.Kind()
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestQuoteApply(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("empty tick leaves timestamp untouched", func(t *testing.T) {
		before := now.Add(-time.Minute)
		q := Quote{UpdateTime: before, Bid: Float(1)}
		require.False(t, q.Apply(QuoteTick{Symbol: "X"}, now))
		assert.Equal(t, before, q.UpdateTime)
		assert.Equal(t, Float(1), q.Bid)
	})

	t.Run("applies only present fields", func(t *testing.T) {
		q := Quote{Bid: Float(1), Ask: Float(2)}
		tick := QuoteTick{Present: enum.QuoteLast | enum.QuoteDelta, Last: 1.5, Delta: 0.4, Bid: 9, Ask: 9}
		require.True(t, q.Apply(tick, now))
		assert.Equal(t, Float(1), q.Bid)
		assert.Equal(t, Float(2), q.Ask)
		assert.Equal(t, Float(1.5), q.Last)
		assert.Equal(t, 0.4, q.Greeks.Delta)
		assert.Equal(t, now, q.UpdateTime)
	})

	t.Run("closed freezes live fields but takes closing price", func(t *testing.T) {
		q := Quote{Bid: Float(1), Last: Float(1.1)}
		require.True(t, q.Apply(QuoteTick{OpenState: enum.OpenStateClosed}, now))
		require.True(t, q.Closed)

		later := now.Add(time.Second)
		tick := QuoteTick{Present: enum.QuoteBid | enum.QuoteLast | enum.QuoteGreeks | enum.QuoteClose, Bid: 5, Last: 5, Delta: 1, Close: 1.2}
		require.True(t, q.Apply(tick, later))
		assert.Equal(t, Float(1), q.Bid)
		assert.Equal(t, Float(1.1), q.Last)
		assert.Zero(t, q.Greeks.Delta)
		assert.Equal(t, Float(1.2), q.ClosingPrice)
		assert.Equal(t, later, q.UpdateTime)
	})

	t.Run("closed tick with only live fields is a no-op", func(t *testing.T) {
		q := Quote{Closed: true, UpdateTime: now}
		require.False(t, q.Apply(QuoteTick{Present: enum.QuoteBid, Bid: 3}, now.Add(time.Hour)))
		assert.Equal(t, now, q.UpdateTime)
		assert.False(t, q.Bid.Valid)
	})

	t.Run("open and prev close apply regardless of state", func(t *testing.T) {
		q := Quote{Closed: true}
		require.True(t, q.Apply(QuoteTick{Present: enum.QuoteOpen | enum.QuotePrevClose, Open: 10, PrevClose: 9}, now))
		assert.Equal(t, Float(10), q.Open)
		assert.Equal(t, Float(9), q.PrevClose)
	})

	t.Run("explicit open state applied before prices", func(t *testing.T) {
		q := Quote{Closed: true}
		require.True(t, q.Apply(QuoteTick{OpenState: enum.OpenStateOpen, Present: enum.QuoteLast | enum.QuoteClose, Last: 7, Close: 8}, now))
		assert.False(t, q.Closed)
		assert.Equal(t, Float(7), q.Last)
		assert.False(t, q.ClosingPrice.Valid)
	})

	t.Run("subscription status counts as an update", func(t *testing.T) {
		q := Quote{}
		require.True(t, q.Apply(QuoteTick{Subscription: enum.SubscriptionFailed}, now))
		assert.Equal(t, enum.SubscriptionFailed, q.Subscription)
	})

	t.Run("index rows ignore bid ask and greeks", func(t *testing.T) {
		row := NewIndexRow(IndexWeight{Symbol: "SPX", IsIndex: true})
		require.False(t, row.Apply(QuoteTick{Present: enum.QuoteBid | enum.QuoteAsk | enum.QuoteGreeks, Bid: 1, Ask: 2, Delta: 1}, now))
		assert.False(t, row.Bid.Valid)
		assert.False(t, row.Ask.Valid)
		assert.Zero(t, row.Greeks)
		assert.True(t, row.UpdateTime.IsZero())

		require.True(t, row.Apply(QuoteTick{Present: enum.QuoteLast | enum.QuoteDelta, Last: 4400, Delta: 1}, now))
		assert.Equal(t, Float(4400), row.Last)
		assert.Zero(t, row.Greeks.Delta)
	})
}

func TestNullFloatJSON(t *testing.T) {
	b, err := Float(1.25).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "1.25", string(b))

	b, err = NullFloat{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	var n NullFloat
	require.NoError(t, n.UnmarshalJSON([]byte("2.5")))
	assert.Equal(t, Float(2.5), n)
	require.NoError(t, n.UnmarshalJSON([]byte("null")))
	assert.False(t, n.Valid)
}
