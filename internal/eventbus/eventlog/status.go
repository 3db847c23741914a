// Package eventlog defines the durable audit record kept for every raised event.
//
// The event log serves two purposes:
//
//  1. Audit: every event ever raised has exactly one row. Rows are never
//     deleted, so the table answers "what happened to order X" long after
//     the saga finished.
//
//  2. Recovery: PENDING and FAILED rows are the input of the retry sweeper,
//     which is how an event survives a handler failure or a process crash.
package eventlog

import "fmt"

// Status represents the processing state of a logged event.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusRetrying   Status = "RETRYING"
	StatusDeadLetter Status = "DEAD_LETTER"
)

// transitions lists the reachable states from each state. SUCCESS and
// DEAD_LETTER are terminal.
var transitions = map[Status][]Status{
	StatusPending:  {StatusFailed, StatusSuccess},
	StatusFailed:   {StatusRetrying},
	StatusRetrying: {StatusSuccess, StatusFailed, StatusDeadLetter},
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusDeadLetter
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusRetrying, StatusDeadLetter:
		return true
	}
	return false
}

// ParseStatus converts the persisted string form into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("eventlog: unknown status %q", v)
	}
	return s, nil
}

func (s Status) String() string { return string(s) }
