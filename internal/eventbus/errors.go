package eventbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent is returned by Raise for a nil event, an event without
	// a name, or one that fails validation. It is a caller bug and never retried.
	ErrInvalidEvent = errors.New("eventbus: invalid event")

	// ErrPublisherNotInitialized is returned when Raise is called on a bus
	// that was not built with New, or through a context without a publisher.
	ErrPublisherNotInitialized = errors.New("eventbus: publisher not initialized")

	// ErrNoHandlerRegistered is returned when no handler exists for an event name.
	ErrNoHandlerRegistered = errors.New("eventbus: no handler registered")

	// ErrDuplicateHandler is returned by Build when two handlers claim one name.
	ErrDuplicateHandler = errors.New("eventbus: duplicate handler")

	// ErrSerialization wraps JSON encoding and decoding failures.
	ErrSerialization = errors.New("eventbus: serialization failed")

	// ErrHandlerPanic is recorded when a handler panics.
	ErrHandlerPanic = errors.New("eventbus: handler panic")

	// ErrAttemptInterrupted is recorded on a RETRYING record whose attempt
	// never finished, typically because the process stopped mid-handler.
	ErrAttemptInterrupted = errors.New("eventbus: retry attempt interrupted")
)

// HandlerExecutionError wraps the error returned by a handler. It is what
// ends up in the LastError column of a FAILED record.
type HandlerExecutionError struct {
	EventName string
	RecordID  string
	Err       error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("eventbus: handler for %s (record %s) failed: %v", e.EventName, e.RecordID, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error {
	return e.Err
}
