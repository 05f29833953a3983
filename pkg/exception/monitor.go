package exception

import "errors"

var (
	ErrMonitorNotRunning     = errors.New("monitor: not running")
	ErrMonitorNotInitialized = errors.New("monitor: not initialized")
	ErrMonitorAlreadyRunning = errors.New("monitor: already running")
	ErrMonitorNilSource      = errors.New("monitor: nil data source")
	ErrMonitorPanic          = errors.New("monitor: refresh loop panic")
)
