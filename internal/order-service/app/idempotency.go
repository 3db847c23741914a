package app

import (
	"context"
	"sync"
)

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryIdempotencyStore keeps keys for the lifetime of the process.
func NewMemoryIdempotencyStore() IdempotencyStore {
	return &memoryIdempotencyStore{keys: make(map[string]string)}
}

func (s *memoryIdempotencyStore) Reserve(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if orderID, ok := s.keys[key]; ok {
		return orderID, false, nil
	}
	s.keys[key] = ""
	return "", true, nil
}

func (s *memoryIdempotencyStore) Complete(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = orderID
	return nil
}

func (s *memoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}
