package exception

import "errors"

var (
	ErrSnapshotQueueFull   = errors.New("snapshot: queue full")
	ErrSnapshotQueueClosed = errors.New("snapshot: queue closed")
	ErrSnapshotNoPortfolio = errors.New("snapshot: portfolio not found")
)
