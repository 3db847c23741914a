package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReservationTTL bounds how long an unfinished request holds its key. A
// process that dies mid-request frees the key when it expires.
const ReservationTTL = 30 * time.Second

const pendingMarker = "PENDING"

// IdempotencyStore maps checkout idempotency keys to the order they
// produced. It implements the order service's IdempotencyStore port.
type IdempotencyStore struct {
	client      redis.UniversalClient
	serviceName string
	ttl         time.Duration
}

func NewIdempotencyStore(client redis.UniversalClient, serviceName string, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdempotencyStore{client: client, serviceName: serviceName, ttl: ttl}
}

// Reserve claims key with SET NX. When the key is taken it returns the
// stored order id, or an empty id while the first request is running.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (string, bool, error) {
	k := s.GenerateKey(key)
	ok, err := s.client.SetNX(ctx, k, pendingMarker, ReservationTTL).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls; the caller may retry
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if val == pendingMarker {
		return "", false, nil
	}
	return val, false, nil
}

// Complete stores the order id for the full TTL.
func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	return s.client.Set(ctx, s.GenerateKey(key), orderID, s.ttl).Err()
}

// Release frees a key whose request failed, so the client can retry it.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.GenerateKey(key)).Err()
}

func (s *IdempotencyStore) GenerateKey(key string) string {
	return generateKey(s.serviceName, "idempotency", key)
}
