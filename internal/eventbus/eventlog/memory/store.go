// Package memory provides an in-process eventlog.Store used by tests and
// by the binary when no durable driver is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
)

// Store keeps records in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]*eventlog.Record
}

var _ eventlog.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{records: make(map[string]*eventlog.Record)}
}

func (s *Store) Insert(_ context.Context, rec *eventlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("memory: record %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*eventlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, eventlog.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) List(_ context.Context, f eventlog.Filter) ([]*eventlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*eventlog.Record, 0)
	for _, rec := range s.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !rec.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, rec *eventlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ID]
	if !ok {
		return eventlog.ErrNotFound
	}
	if current.Version != rec.Version {
		return eventlog.ErrConcurrentUpdate
	}

	rec.Version++
	s.records[rec.ID] = rec.Clone()
	return nil
}
