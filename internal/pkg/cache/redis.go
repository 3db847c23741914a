// Package cache holds the Redis-backed markers used to acknowledge events
// that were already handled and to remember checkout idempotency keys.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a delivered marker is kept. It only needs to
// outlive the retry window of the event log.
const DefaultTTL = 24 * time.Hour

// Deduper records delivered event ids in Redis. It implements
// eventbus.Deduper.
type Deduper struct {
	client      redis.UniversalClient
	serviceName string
	ttl         time.Duration
}

func NewDeduper(client redis.UniversalClient, serviceName string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{client: client, serviceName: serviceName, ttl: ttl}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (d *Deduper) Delivered(ctx context.Context, recordID string) (bool, error) {
	_, err := d.client.Get(ctx, d.GenerateKey("delivered", recordID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkDelivered stores the marker with SET NX, so the first writer wins and
// later writes do not extend the TTL.
func (d *Deduper) MarkDelivered(ctx context.Context, recordID string) error {
	return d.client.SetNX(ctx, d.GenerateKey("delivered", recordID), time.Now().UTC().Format(time.RFC3339Nano), d.ttl).Err()
}

func (d *Deduper) GenerateKey(operation, key string) string {
	return generateKey(d.serviceName, operation, key)
}

func generateKey(serviceName, operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", serviceName, operation, key)
}
