package enum

// InstrumentKind tells the quote feed how to subscribe a symbol.
type InstrumentKind uint8

const (
	_instrument_beg InstrumentKind = iota
	InstrumentStock
	InstrumentOption
	InstrumentFuture
	InstrumentIndex
	_instrument_end
)

func (k InstrumentKind) IsAvailable() bool {
	return k > _instrument_beg && k < _instrument_end
}

func (k InstrumentKind) String() string {
	switch k {
	case InstrumentStock:
		return "stock"
	case InstrumentOption:
		return "option"
	case InstrumentFuture:
		return "future"
	case InstrumentIndex:
		return "index"
	default:
		return "unknown"
	}
}

// OptionType is the put/call flag of an option row. Non-option rows carry OptionNone.
type OptionType uint8

const (
	OptionNone OptionType = iota
	OptionPut
	OptionCall
)

// ParseOptionType accepts the source's "Put"/"Call" text, case-insensitive on the first letter.
func ParseOptionType(s string) OptionType {
	if len(s) == 0 {
		return OptionNone
	}
	switch s[0] {
	case 'P', 'p':
		return OptionPut
	case 'C', 'c':
		return OptionCall
	default:
		return OptionNone
	}
}

func (o OptionType) String() string {
	switch o {
	case OptionPut:
		return "Put"
	case OptionCall:
		return "Call"
	default:
		return ""
	}
}

func (o OptionType) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *OptionType) UnmarshalText(b []byte) error {
	*o = ParseOptionType(string(b))
	return nil
}
