package exception

import "errors"

var (
	ErrSourceNotFound = errors.New("source: not found")
	ErrSourceNilDB    = errors.New("source: nil db")
)
