package enum

// SnapshotType identifies which scheduled portfolio snapshot is taken.
type SnapshotType uint8

const (
	_snapshot_beg SnapshotType = iota
	SnapshotStartOfTrading
	SnapshotEndOfTrading
	SnapshotEndOfDay
	_snapshot_end
)

func (t SnapshotType) IsAvailable() bool {
	return t > _snapshot_beg && t < _snapshot_end
}

func (t SnapshotType) String() string {
	switch t {
	case SnapshotStartOfTrading:
		return "StartOfTrading"
	case SnapshotEndOfTrading:
		return "EndOfTrading"
	case SnapshotEndOfDay:
		return "EndOfDay"
	default:
		return "Unknown"
	}
}

// ParseSnapshotType maps the stored text back to a SnapshotType.
func ParseSnapshotType(s string) SnapshotType {
	switch s {
	case "StartOfTrading":
		return SnapshotStartOfTrading
	case "EndOfTrading":
		return SnapshotEndOfTrading
	case "EndOfDay":
		return SnapshotEndOfDay
	default:
		return _snapshot_beg
	}
}

func (t SnapshotType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *SnapshotType) UnmarshalText(b []byte) error {
	*t = ParseSnapshotType(string(b))
	return nil
}
