package upload

import "time"

// Metrics records upload activity. Implementations must be nil-safe: a nil
// Metrics disables recording with zero overhead, so sessions never check
// for nil before calling.
type Metrics interface {
	// RecordPartUploaded records a confirmed part and its size.
	RecordPartUploaded(sizeBytes int64)

	// RecordPartRetry records one retry of a part transfer.
	RecordPartRetry()

	// RecordFlush records a buffer flush with its duration and outcome.
	RecordFlush(duration time.Duration, err error)

	// RecordSessionCompleted records a session reaching a terminal state.
	RecordSessionCompleted(status Status)
}

// noopMetrics discards all recordings. Used when no Metrics is configured.
type noopMetrics struct{}

func (noopMetrics) RecordPartUploaded(int64)         {}
func (noopMetrics) RecordPartRetry()                 {}
func (noopMetrics) RecordFlush(time.Duration, error) {}
func (noopMetrics) RecordSessionCompleted(Status)    {}
