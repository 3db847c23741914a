package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var nowFunc = func() time.Time { return time.Now().UTC() }

// Record is a single row in the event_logs table.
type Record struct {
	// ID is assigned at creation and never changes.
	ID string

	// EventName is the stable identity used for handler lookup.
	EventName string

	// Payload is the JSON-serialised event, stored once so the event can
	// be replayed from the log.
	Payload string

	Status     Status
	RetryCount int

	// LastError holds the most recent handler failure, empty on success.
	LastError string

	// TraceID and SpanID identify the span that raised the event.
	TraceID string
	SpanID  string

	// Version is the optimistic concurrency token. Stores compare it on
	// update and bump it on success.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord builds a PENDING record for a freshly raised event. The trace
// identifiers are taken from the span active in ctx, if any.
func NewRecord(ctx context.Context, eventName, payload string) (*Record, error) {
	if eventName == "" {
		return nil, ErrEventNameRequired
	}
	if payload == "" {
		return nil, ErrPayloadRequired
	}

	ti := ExtractTraceInfo(ctx)
	now := nowFunc()

	return &Record{
		ID:        uuid.NewString(),
		EventName: eventName,
		Payload:   payload,
		Status:    StatusPending,
		TraceID:   ti.TraceID,
		SpanID:    ti.SpanID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the record to target if the state machine allows it.
func (r *Record) Transition(target Status) error {
	if !r.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, target)
	}
	r.Status = target
	if target == StatusSuccess {
		r.LastError = ""
	}
	r.touch()
	return nil
}

// Fail moves the record to FAILED and remembers the cause.
func (r *Record) Fail(cause error) error {
	if err := r.Transition(StatusFailed); err != nil {
		return err
	}
	if cause != nil {
		r.LastError = cause.Error()
	}
	return nil
}

// Exhaust dead-letters a FAILED record whose retry budget is already spent.
// It is the policy route into DEAD_LETTER for records that are swept after
// their last attempt; records failing a retry attempt use the
// RETRYING -> DEAD_LETTER edge instead.
func (r *Record) Exhaust() error {
	if r.Status != StatusFailed {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, StatusDeadLetter)
	}
	r.Status = StatusDeadLetter
	r.touch()
	return nil
}

// IncreaseRetryCount records one retry attempt.
func (r *Record) IncreaseRetryCount() {
	r.RetryCount++
	r.touch()
}

// SetRetryCount overrides the counter. Negative values and decreases are rejected.
func (r *Record) SetRetryCount(n int) error {
	if n < 0 {
		return ErrNegativeRetryCount
	}
	if n < r.RetryCount {
		return fmt.Errorf("%w: %d -> %d", ErrRetryCountDecrease, r.RetryCount, n)
	}
	r.RetryCount = n
	r.touch()
	return nil
}

// Touch bumps UpdatedAt without changing the status. Dispatchers persist a
// touched PENDING record to claim it before invoking its handler.
func (r *Record) Touch() {
	r.touch()
}

// Clone returns a copy that can be mutated without affecting r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

func (r *Record) touch() {
	now := nowFunc()
	if !now.After(r.UpdatedAt) {
		now = r.UpdatedAt.Add(time.Nanosecond)
	}
	r.UpdatedAt = now
}
