// Package sqlite provides a SQLite-backed implementation of eventlog.Store.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa, which matters because dispatcher workers write while the sweeper
// and the ops HTTP surface read.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"

	// Register the pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup. One row per raised event;
// rows are updated in place as the event moves through its lifecycle and
// are never deleted.
const schema = `
CREATE TABLE IF NOT EXISTS event_logs (
    id           TEXT    PRIMARY KEY,
    event_name   TEXT    NOT NULL,
    payload      TEXT    NOT NULL,

    -- PENDING | SUCCESS | FAILED | RETRYING | DEAD_LETTER
    status       TEXT    NOT NULL,
    retry_count  INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
    last_error   TEXT    NOT NULL DEFAULT '',

    -- W3C trace/span of the span that raised the event.
    trace_id     TEXT    NOT NULL DEFAULT '',
    span_id      TEXT    NOT NULL DEFAULT '',

    -- Optimistic concurrency token, bumped on every update.
    version      INTEGER NOT NULL DEFAULT 0,

    -- RFC3339 stored as TEXT, SQLite idiom.
    created_at   TEXT    NOT NULL,
    updated_at   TEXT    NOT NULL
);

-- The sweeper scans by status, oldest first.
CREATE INDEX IF NOT EXISTS idx_event_logs_status ON event_logs(status, updated_at);

CREATE INDEX IF NOT EXISTS idx_event_logs_trace_id ON event_logs(trace_id);
`

const columns = `id, event_name, payload, status, retry_count, last_error, trace_id, span_id, version, created_at, updated_at`

// Repository is the SQLite implementation of eventlog.Store.
type Repository struct {
	db *sql.DB
}

var _ eventlog.Store = (*Repository)(nil)

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
//
//	repo, err := sqlite.Open("./data/events.db")
func Open(path string) (*Repository, error) {
	// busy_timeout waits for locks instead of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection. It also makes
	// the version check in Update race-free.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Insert persists a new PENDING record.
func (r *Repository) Insert(ctx context.Context, rec *eventlog.Record) error {
	q := `INSERT INTO event_logs (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.EventName,
		rec.Payload,
		string(rec.Status),
		rec.RetryCount,
		rec.LastError,
		rec.TraceID,
		rec.SpanID,
		rec.Version,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert event log %q: %w", rec.ID, err)
	}
	return nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (*eventlog.Record, error) {
	q := `SELECT ` + columns + ` FROM event_logs WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventlog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get event log %q: %w", id, err)
	}
	return rec, nil
}

// List returns records matching the filter, oldest first.
func (r *Repository) List(ctx context.Context, f eventlog.Filter) ([]*eventlog.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, formatTime(f.UpdatedBefore))
	}

	q := `SELECT ` + columns + ` FROM event_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list event logs: %w", err)
	}
	defer rows.Close()

	var out []*eventlog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan event log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list event logs: %w", err)
	}
	return out, nil
}

// Update writes the mutable columns when the stored version matches.
func (r *Repository) Update(ctx context.Context, rec *eventlog.Record) error {
	const q = `
		UPDATE event_logs
		SET    status = ?, retry_count = ?, last_error = ?, version = version + 1, updated_at = ?
		WHERE  id = ? AND version = ?`

	res, err := r.db.ExecContext(ctx, q,
		string(rec.Status),
		rec.RetryCount,
		rec.LastError,
		formatTime(rec.UpdatedAt),
		rec.ID,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update event log %q: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update event log %q: %w", rec.ID, err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, rec.ID); errors.Is(getErr, eventlog.ErrNotFound) {
			return eventlog.ErrNotFound
		}
		return eventlog.ErrConcurrentUpdate
	}

	rec.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*eventlog.Record, error) {
	var (
		rec                  eventlog.Record
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.ID,
		&rec.EventName,
		&rec.Payload,
		&status,
		&rec.RetryCount,
		&rec.LastError,
		&rec.TraceID,
		&rec.SpanID,
		&rec.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Status, err = eventlog.ParseStatus(status); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// applySchema runs the DDL statements once. Idempotent due to IF NOT EXISTS.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}
