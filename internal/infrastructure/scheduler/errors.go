package scheduler

import "errors"

// Submission errors. The HTTP layer maps them to 503 and 400 responses.
var (
	ErrSchedulerNotRunning  = errors.New("scheduler is not running")
	ErrJobQueueFull         = errors.New("job queue is full")
	ErrSyncInvalidTimeRange = errors.New("invalid sync time range")
)

// ErrInvalidConfig wraps a rejected scheduler or housekeeping setting
var ErrInvalidConfig = errors.New("invalid scheduler configuration")
