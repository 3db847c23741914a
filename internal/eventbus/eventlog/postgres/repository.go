// Package postgres provides a PostgreSQL implementation of eventlog.Store
// on top of a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
)

// Schema creates the event_logs table. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS event_logs (
    id           TEXT        PRIMARY KEY,
    event_name   VARCHAR(100) NOT NULL,
    payload      TEXT        NOT NULL,
    status       VARCHAR(16) NOT NULL,
    retry_count  INTEGER     NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
    last_error   TEXT        NOT NULL DEFAULT '',
    trace_id     TEXT        NOT NULL DEFAULT '',
    span_id      TEXT        NOT NULL DEFAULT '',
    version      BIGINT      NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_logs_status ON event_logs(status, updated_at);
`

const columns = `id, event_name, payload, status, retry_count, last_error, trace_id, span_id, version, created_at, updated_at`

// Repository stores event log records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ eventlog.Store = (*Repository)(nil)

// Open connects a pool to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	repo := New(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate applies Schema. Idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) Insert(ctx context.Context, rec *eventlog.Record) error {
	q := `INSERT INTO event_logs (` + columns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, q,
		rec.ID,
		rec.EventName,
		rec.Payload,
		string(rec.Status),
		rec.RetryCount,
		rec.LastError,
		rec.TraceID,
		rec.SpanID,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event log %q: %w", rec.ID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*eventlog.Record, error) {
	q := `SELECT ` + columns + ` FROM event_logs WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eventlog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get event log %q: %w", id, err)
	}
	return rec, nil
}

// List returns matching records oldest first.
func (r *Repository) List(ctx context.Context, f eventlog.Filter) ([]*eventlog.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.UpdatedBefore.IsZero() {
		args = append(args, f.UpdatedBefore)
		where = append(where, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	q := `SELECT ` + columns + ` FROM event_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list event logs: %w", err)
	}
	defer rows.Close()

	var out []*eventlog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list event logs: %w", err)
	}
	return out, nil
}

// Update is a compare-and-set on (id, version). The row is locked with
// FOR UPDATE SKIP LOCKED first, so a concurrent writer on the same row
// gets ErrConcurrentUpdate instead of waiting.
func (r *Repository) Update(ctx context.Context, rec *eventlog.Record) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int64
	err = tx.QueryRow(ctx, `
		SELECT version FROM event_logs
		WHERE  id = $1
		FOR UPDATE SKIP LOCKED`, rec.ID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM event_logs WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: update event log %q: %w", rec.ID, err)
		}
		if !exists {
			return eventlog.ErrNotFound
		}
		return eventlog.ErrConcurrentUpdate
	}
	if err != nil {
		return fmt.Errorf("postgres: lock event log %q: %w", rec.ID, err)
	}
	if version != rec.Version {
		return eventlog.ErrConcurrentUpdate
	}

	_, err = tx.Exec(ctx, `
		UPDATE event_logs
		SET    status = $2, retry_count = $3, last_error = $4, version = version + 1, updated_at = $5
		WHERE  id = $1`,
		rec.ID, string(rec.Status), rec.RetryCount, rec.LastError, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update event log %q: %w", rec.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}

	rec.Version++
	return nil
}

func scanRecord(row pgx.Row) (*eventlog.Record, error) {
	var (
		rec    eventlog.Record
		status string
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
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.Status, err = eventlog.ParseStatus(status); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
