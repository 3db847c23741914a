package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreLifecycle(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewIdempotencyStore(client, "choreography", time.Hour)
	ctx := context.Background()

	orderID, reserved, err := s.Reserve(ctx, "u-1:key-1")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Empty(t, orderID)

	key := "choreography:idempotency:u-1:key-1"
	assert.Equal(t, ReservationTTL, mr.TTL(key))

	// a concurrent retry sees the request in progress
	orderID, reserved, err = s.Reserve(ctx, "u-1:key-1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Empty(t, orderID)

	require.NoError(t, s.Complete(ctx, "u-1:key-1", "o-1"))
	assert.Equal(t, time.Hour, mr.TTL(key))

	orderID, reserved, err = s.Reserve(ctx, "u-1:key-1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "o-1", orderID)
}

func TestIdempotencyStoreRelease(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewIdempotencyStore(client, "svc", 0)
	ctx := context.Background()
	assert.Equal(t, DefaultTTL, s.ttl)

	_, reserved, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, s.Release(ctx, "k"))
	assert.False(t, mr.Exists("svc:idempotency:k"))

	_, reserved, err = s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestIdempotencyReservationExpires(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewIdempotencyStore(client, "svc", time.Hour)
	ctx := context.Background()

	_, reserved, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	require.True(t, reserved)

	mr.FastForward(ReservationTTL + time.Second)

	_, reserved, err = s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestIdempotencyStoreSurfacesRedisErrors(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewIdempotencyStore(client, "svc", time.Hour)
	mr.Close()

	_, _, err := s.Reserve(context.Background(), "k")
	assert.Error(t, err)
}
