package eventlog

import (
	"context"
	"time"
)

// Filter narrows a List query. Zero values mean "no constraint".
type Filter struct {
	Status Status
	// UpdatedBefore limits the result to records untouched since the given time.
	UpdatedBefore time.Time
	Limit         int
}

// Store is the port for persisting event log records. The bus, the
// dispatcher and the sweeper depend on this abstraction; sqlite, postgres
// and memory adapters implement it.
type Store interface {
	// Insert persists a new record. Records are never deleted.
	Insert(ctx context.Context, rec *Record) error

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records matching f, oldest first.
	List(ctx context.Context, f Filter) ([]*Record, error)

	// Update writes rec if the stored version still equals rec.Version and
	// bumps rec.Version on success. A stale version yields ErrConcurrentUpdate.
	Update(ctx context.Context, rec *Record) error
}
