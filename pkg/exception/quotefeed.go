package exception

import "errors"

var (
	ErrQuoteFeedClosed      = errors.New("quote feed: closed")
	ErrQuoteFeedBadPayload  = errors.New("quote feed: bad payload")
	ErrQuoteFeedUnsupported = errors.New("quote feed: unsupported kind")
)
