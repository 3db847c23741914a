package eventbus

import (
	"context"
	"time"
)

// Metrics captures bus telemetry. telemetry.PrometheusMetrics implements it.
type Metrics interface {
	// EventRaised counts a persisted event.
	EventRaised(name string)
	// EventDeferred counts an event left PENDING because the queue was full.
	EventDeferred(name string)
	// HandlerCompleted records one handler invocation and its outcome.
	HandlerCompleted(name string, err error, duration time.Duration)
	// EventRetried counts a retry attempt.
	EventRetried(name string)
	// EventDeadLettered counts a record moved to DEAD_LETTER.
	EventDeadLettered(name string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) EventRaised(string)                            {}
func (NopMetrics) EventDeferred(string)                          {}
func (NopMetrics) HandlerCompleted(string, error, time.Duration) {}
func (NopMetrics) EventRetried(string)                           {}
func (NopMetrics) EventDeadLettered(string)                      {}

// Deduper remembers which records have already been handled successfully,
// so a record replayed after a crash between handler and status update is
// acknowledged without running the handler again.
type Deduper interface {
	Delivered(ctx context.Context, recordID string) (bool, error)
	MarkDelivered(ctx context.Context, recordID string) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
