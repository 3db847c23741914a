package eventbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, orderPlaced) error { return nil }

func TestRegistryBuildAndLookup(t *testing.T) {
	registry, err := NewRegistryBuilder().
		Register(On("OrderShipped", func(context.Context, orderShipped) error { return nil })).
		Register(On("OrderPlaced", noop)).
		Build()
	require.NoError(t, err)

	for _, name := range []string{"OrderPlaced", "OrderShipped"} {
		assert.True(t, registry.Has(name))
		h, err := registry.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, h.EventName())
	}
	assert.Equal(t, []string{"OrderPlaced", "OrderShipped"}, registry.Names())
}

func TestRegistryGetMissing(t *testing.T) {
	registry, err := NewRegistryBuilder().Build()
	require.NoError(t, err)

	assert.False(t, registry.Has("OrderPlaced"))
	_, err = registry.Get("OrderPlaced")
	assert.ErrorIs(t, err, ErrNoHandlerRegistered)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistryBuilder().
		Register(On("OrderPlaced", noop), On("OrderPlaced", noop)).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateHandler)
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewRegistryBuilder().Register(On("", noop)).Build()
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewRegistryBuilder().Register(nil).Build()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestRegistryRequire(t *testing.T) {
	registry, err := NewRegistryBuilder().Register(On("OrderPlaced", noop)).Build()
	require.NoError(t, err)

	require.NoError(t, registry.Require("OrderPlaced"))

	err = registry.Require("OrderPlaced", "OrderShipped", "PaymentCompleted")
	require.ErrorIs(t, err, ErrNoHandlerRegistered)
	assert.Contains(t, err.Error(), "OrderShipped")
	assert.Contains(t, err.Error(), "PaymentCompleted")
}

func TestOnDecodesPayload(t *testing.T) {
	var got orderPlaced
	h := On("OrderPlaced", func(_ context.Context, ev orderPlaced) error {
		got = ev
		return nil
	})

	payload, err := json.Marshal(orderPlaced{OrderID: "o-1", Amount: 42})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), Envelope{Name: "OrderPlaced", Payload: payload}))
	assert.Equal(t, orderPlaced{OrderID: "o-1", Amount: 42}, got)

	err = h.Handle(context.Background(), Envelope{Name: "OrderPlaced", Payload: json.RawMessage(`{`)})
	assert.ErrorIs(t, err, ErrSerialization)
}
