package model

import (
	"database/sql/driver"
	"strconv"

	"github.com/yanun0323/errors"
)

// NullFloat is a float that may be absent. Quote fields and the source's
// start-of-day price use it to tell "no value" apart from zero.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a present NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Get returns the value and whether it is present.
func (n NullFloat) Get() (float64, bool) {
	return n.Float64, n.Valid
}

// Or returns the value, or def when absent.
func (n NullFloat) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Float64
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.Float64, 'f', -1, 64), nil
}

func (n *NullFloat) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == "" {
		*n = NullFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(err, "parse null float %q", s)
	}
	*n = Float(v)
	return nil
}

// Scan implements sql.Scanner.
func (n *NullFloat) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = NullFloat{}
	case float64:
		*n = Float(v)
	case float32:
		*n = Float(float64(v))
	case int64:
		*n = Float(float64(v))
	case []byte:
		return n.UnmarshalJSON(v)
	case string:
		return n.UnmarshalJSON([]byte(v))
	default:
		return errors.Errorf("scan null float from %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (n NullFloat) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Float64, nil
}
