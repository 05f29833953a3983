package monitor

import (
	"sync/atomic"

	"github.com/yanun0323/errors"
)

// ErrInvalidTransition is returned for a lifecycle change the current state
// does not allow.
var ErrInvalidTransition = errors.New("monitor: invalid state transition")

// State tracks the lifecycle of the monitor.
type State uint32

const (
	StateUninitialized State = iota
	StateInitialized
	StateMonitoring
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateMonitoring:
		return "Monitoring"
	default:
		return "Unknown"
	}
}

// lifecycle holds the current state. Transitions are serialized by the
// caller; reads are lock free so caches can check it from any goroutine.
type lifecycle struct {
	state atomic.Uint32
}

func (l *lifecycle) Load() State {
	return State(l.state.Load())
}

// Transition moves from one state to the next, failing when the current
// state is not from or the edge is not part of the lifecycle.
func (l *lifecycle) Transition(from, to State) error {
	if !allowed(from, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	if !l.state.CompareAndSwap(uint32(from), uint32(to)) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s, current: %s", from, to, l.Load())
	}
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateInitialized
	case StateInitialized:
		return to == StateMonitoring
	case StateMonitoring:
		return to == StateInitialized
	default:
		return false
	}
}
