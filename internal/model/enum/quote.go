package enum

// QuoteField is a presence bitmask for the fields carried by a quote tick.
type QuoteField uint16

const (
	QuoteBid QuoteField = 1 << iota
	QuoteAsk
	QuoteLast
	QuoteOpen
	QuotePrevClose
	QuoteClose
	QuoteDelta
	QuoteGamma
	QuoteTheta
	QuoteVega
	QuoteImpliedVol

	QuoteNone   QuoteField = 0
	QuoteGreeks            = QuoteDelta | QuoteGamma | QuoteTheta | QuoteVega | QuoteImpliedVol
	QuoteAll               = QuoteBid | QuoteAsk | QuoteLast | QuoteOpen | QuotePrevClose | QuoteClose | QuoteGreeks
)

// Has reports whether every bit of f is set.
func (q QuoteField) Has(f QuoteField) bool {
	return q&f == f
}

// OpenState is the open/closed indicator carried by a tick.
type OpenState uint8

const (
	OpenStateUnchanged OpenState = iota
	OpenStateOpen
	OpenStateClosed
)

// SubscriptionStatus is the per-row quote subscription state.
type SubscriptionStatus uint8

const (
	SubscriptionUnchanged SubscriptionStatus = iota
	SubscriptionUnsubscribed
	SubscriptionSubscribed
	SubscriptionFailed
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionUnsubscribed:
		return "Unsubscribed"
	case SubscriptionSubscribed:
		return "Subscribed"
	case SubscriptionFailed:
		return "Failed"
	default:
		return ""
	}
}

func (s SubscriptionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SubscriptionStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Unsubscribed":
		*s = SubscriptionUnsubscribed
	case "Subscribed":
		*s = SubscriptionSubscribed
	case "Failed":
		*s = SubscriptionFailed
	default:
		*s = SubscriptionUnchanged
	}
	return nil
}
