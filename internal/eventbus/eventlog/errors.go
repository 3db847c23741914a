package eventlog

import "errors"

var (
	// ErrEventNameRequired is returned when a record is created without an event name.
	ErrEventNameRequired = errors.New("eventlog: event name is required")
	// ErrPayloadRequired is returned when a record is created without a payload.
	ErrPayloadRequired = errors.New("eventlog: payload is required")
	// ErrIllegalTransition signals a status change the state machine does not allow.
	ErrIllegalTransition = errors.New("eventlog: illegal status transition")
	// ErrNegativeRetryCount is returned by SetRetryCount for values below zero.
	ErrNegativeRetryCount = errors.New("eventlog: retry count cannot be negative")
	// ErrRetryCountDecrease is returned by SetRetryCount when the counter would go backwards.
	ErrRetryCountDecrease = errors.New("eventlog: retry count cannot decrease")
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("eventlog: record not found")
	// ErrConcurrentUpdate is returned when a record changed since it was read.
	ErrConcurrentUpdate = errors.New("eventlog: record was modified concurrently")
)
