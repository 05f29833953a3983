package quotefeed

import (
	"slices"
	"sync"

	"positionmonitor/internal/model/enum"
)

// subscription is one symbol on the wire. Every handle attached to it
// receives the symbol's ticks; the handles are its reference count.
type subscription struct {
	kind    enum.InstrumentKind
	handles []any
}

// subscriptions tracks the symbols of one connection.
type subscriptions struct {
	mu      sync.Mutex
	symbols map[string]*subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		symbols: make(map[string]*subscription),
	}
}

// Add attaches handle to symbol and reports whether the symbol is new and
// must be subscribed on the wire. Attaching the same handle twice is a no-op.
func (s *subscriptions) Add(symbol string, kind enum.InstrumentKind, handle any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.symbols[symbol]
	if !ok {
		s.symbols[symbol] = &subscription{kind: kind, handles: []any{handle}}
		return true
	}
	if !slices.Contains(sub.handles, handle) {
		sub.handles = append(sub.handles, handle)
	}
	return false
}

// Remove detaches handle from symbol. last is true when no handle is left
// and the symbol must be unsubscribed on the wire.
func (s *subscriptions) Remove(symbol string, handle any) (kind enum.InstrumentKind, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.symbols[symbol]
	if !ok {
		return 0, false
	}
	i := slices.Index(sub.handles, handle)
	if i < 0 {
		return sub.kind, false
	}
	sub.handles = slices.Delete(sub.handles, i, i+1)
	if len(sub.handles) > 0 {
		return sub.kind, false
	}
	delete(s.symbols, symbol)
	return sub.kind, true
}

// Handles returns a copy of the handles attached to symbol.
func (s *subscriptions) Handles(symbol string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	return slices.Clone(sub.handles)
}

// Count returns the number of symbols on the wire.
func (s *subscriptions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}
