// Package quotefeed connects portfolio rows to a publish/subscribe quote feed.
package quotefeed

import (
	"context"

	"positionmonitor/internal/model"
	"positionmonitor/internal/model/enum"
)

// Handler receives feed events. Calls arrive on the feed's reader goroutine.
type Handler interface {
	OnQuote(tick model.QuoteTick)
	// OnError reports a recoverable feed error.
	OnError(err error)
	// OnStopped reports that the connection terminated on its own.
	OnStopped(err error)
}

// Feed is one live quote connection.
type Feed interface {
	// Subscribe starts delivering ticks for symbol to handle. A symbol may
	// carry several handles; each tick is delivered once per handle with
	// QuoteTick.Handle set to it.
	Subscribe(symbol string, kind enum.InstrumentKind, handle any) error
	// Unsubscribe detaches handle from symbol. The symbol leaves the wire
	// once its last handle is detached.
	Unsubscribe(symbol string, handle any) error
	// Close tears the connection down without waiting for in-flight handler calls.
	Close() error
}

// Dialer opens feed connections.
type Dialer interface {
	Dial(ctx context.Context, handler Handler) (Feed, error)
}
