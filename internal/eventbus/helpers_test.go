package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog/memory"
)

type orderPlaced struct {
	OrderID string `json:"orderId" validate:"required"`
	Amount  int    `json:"amount" validate:"gte=0"`
}

func (orderPlaced) EventName() string { return "OrderPlaced" }

type orderShipped struct {
	OrderID string `json:"orderId" validate:"required"`
}

func (orderShipped) EventName() string { return "OrderShipped" }

type unregistered struct{}

func (unregistered) EventName() string { return "Unregistered" }

type unserialisable struct {
	Ch chan int
}

func (unserialisable) EventName() string { return "OrderPlaced" }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// recordingHandler counts calls and returns the configured errors in order,
// then nil.
type recordingHandler struct {
	mu    sync.Mutex
	calls int32
	errs  []error
	seen  []Envelope
}

func (h *recordingHandler) handle(_ context.Context, env Envelope) error {
	atomic.AddInt32(&h.calls, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, env)
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

func (h *recordingHandler) Calls() int { return int(atomic.LoadInt32(&h.calls)) }

type funcHandler struct {
	name string
	fn   func(ctx context.Context, env Envelope) error
}

func (h funcHandler) EventName() string                              { return h.name }
func (h funcHandler) Handle(ctx context.Context, env Envelope) error { return h.fn(ctx, env) }

type harness struct {
	store      *memory.Store
	bus        *Bus
	dispatcher *Dispatcher
	sweeper    *Sweeper
}

func newHarness(t *testing.T, handlers []Handler, opts ...Option) *harness {
	t.Helper()
	registry, err := NewRegistryBuilder().Register(handlers...).Build()
	require.NoError(t, err)

	store := memory.NewStore()
	bus, err := New(store, registry, opts...)
	require.NoError(t, err)

	d := NewDispatcher(bus)
	return &harness{store: store, bus: bus, dispatcher: d, sweeper: NewSweeper(d)}
}

func (h *harness) only(t *testing.T) *eventlog.Record {
	t.Helper()
	recs, err := h.store.List(context.Background(), eventlog.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

var errBoom = errors.New("boom")
