// Package bus provides the bounded in-memory queue used to hand work from
// latency sensitive paths to background workers.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"positionmonitor/pkg/exception"
)

// Queue is a bounded, non-blocking queue.
type Queue[T any] struct {
	ch      chan T
	closeMu sync.RWMutex
	closed  atomic.Bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues v without blocking.
func (q *Queue[T]) TryPublish(v T) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.closed.Load() {
		return exception.ErrSnapshotQueueClosed
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return exception.ErrSnapshotQueueFull
	}
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new items. Items already queued are
// still delivered by Run.
func (q *Queue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()

	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Run consumes items until the context is done or the queue is closed and
// drained.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-q.ch:
			if !ok {
				return
			}
			handler(v)
		}
	}
}
