package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
)

func raiseAndFail(t *testing.T, h *harness) *eventlog.Record {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.bus.Raise(ctx, orderPlaced{OrderID: "o-1"}))
	require.NoError(t, h.dispatcher.Dispatch(ctx, h.only(t).ID))
	rec := h.only(t)
	require.Equal(t, eventlog.StatusFailed, rec.Status)
	return rec
}

func TestSweepRetriesFailedRecord(t *testing.T) {
	rh := &recordingHandler{errs: []error{errBoom}}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}}, WithMaxRetries(3))
	raiseAndFail(t, h)

	require.NoError(t, h.sweeper.SweepOnce(context.Background()))

	got := h.only(t)
	assert.Equal(t, eventlog.StatusSuccess, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 2, rh.Calls())
	assert.Equal(t, 1, rh.seen[1].RetryCount)
}

func TestSweepDeadLettersAfterBudget(t *testing.T) {
	rh := &recordingHandler{errs: []error{errBoom, errBoom, errBoom, errBoom}}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}}, WithMaxRetries(2))
	raiseAndFail(t, h)
	ctx := context.Background()

	require.NoError(t, h.sweeper.SweepOnce(ctx))
	got := h.only(t)
	assert.Equal(t, eventlog.StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	require.NoError(t, h.sweeper.SweepOnce(ctx))
	got = h.only(t)
	assert.Equal(t, eventlog.StatusDeadLetter, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Contains(t, got.LastError, "boom")

	// dead letters are excluded from later sweeps
	require.NoError(t, h.sweeper.SweepOnce(ctx))
	assert.Equal(t, 3, rh.Calls())
	assert.Equal(t, eventlog.StatusDeadLetter, h.only(t).Status)
}

func TestSweepExhaustsSpentRecordWithoutCallingHandler(t *testing.T) {
	rh := &recordingHandler{errs: []error{errBoom}}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}}, WithMaxRetries(0))
	raiseAndFail(t, h)

	require.NoError(t, h.sweeper.SweepOnce(context.Background()))

	got := h.only(t)
	assert.Equal(t, eventlog.StatusDeadLetter, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, 1, rh.Calls())
}

func TestRetryCountNeverDecreases(t *testing.T) {
	rh := &recordingHandler{errs: []error{errBoom, errBoom, errBoom}}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}}, WithMaxRetries(5))
	raiseAndFail(t, h)

	last := 0
	for i := 0; i < 4; i++ {
		require.NoError(t, h.sweeper.SweepOnce(context.Background()))
		got := h.only(t)
		assert.GreaterOrEqual(t, got.RetryCount, last)
		last = got.RetryCount
	}
	assert.Equal(t, eventlog.StatusSuccess, h.only(t).Status)
	assert.Equal(t, 3, last)
}

func TestRedeliverSkipsOnConflict(t *testing.T) {
	rh := &recordingHandler{errs: []error{errBoom}}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}})
	rec := raiseAndFail(t, h)

	h.bus.store = conflictStore{Store: h.store}
	require.NoError(t, h.dispatcher.Redeliver(context.Background(), rec))

	assert.Equal(t, 1, rh.Calls())
	assert.Equal(t, eventlog.StatusFailed, h.only(t).Status)
}

func TestRedeliverIgnoresNonFailed(t *testing.T) {
	rh := &recordingHandler{}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}})
	rec := &eventlog.Record{ID: "r-1", EventName: "OrderPlaced", Status: eventlog.StatusSuccess}

	require.NoError(t, h.dispatcher.Redeliver(context.Background(), rec))
	assert.Equal(t, 0, rh.Calls())
}

func TestSweepRecoversStalePending(t *testing.T) {
	rh := &recordingHandler{}
	future := fixedClock{now: time.Now().UTC().Add(time.Hour)}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}},
		WithClock(future), WithPendingGrace(time.Minute))
	ctx := context.Background()

	require.NoError(t, h.bus.Raise(ctx, orderPlaced{OrderID: "o-1"}))
	require.NoError(t, h.sweeper.SweepOnce(ctx))

	assert.Equal(t, eventlog.StatusSuccess, h.only(t).Status)
	assert.Equal(t, 1, rh.Calls())
}

func TestSweepLeavesFreshPending(t *testing.T) {
	rh := &recordingHandler{}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}}, WithPendingGrace(time.Hour))
	ctx := context.Background()

	require.NoError(t, h.bus.Raise(ctx, orderPlaced{OrderID: "o-1"}))
	require.NoError(t, h.sweeper.SweepOnce(ctx))

	assert.Equal(t, eventlog.StatusPending, h.only(t).Status)
	assert.Equal(t, 0, rh.Calls())
}

func TestRecoverPendingAtBoot(t *testing.T) {
	rh := &recordingHandler{}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}})
	ctx := context.Background()

	require.NoError(t, h.bus.Raise(ctx, orderPlaced{OrderID: "o-1"}))
	require.NoError(t, h.bus.Raise(ctx, orderPlaced{OrderID: "o-2"}))

	n, err := h.dispatcher.RecoverPending(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, rh.Calls())
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, []Handler{On("OrderPlaced", noop)}, WithRetryInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.sweeper.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func insertRetrying(t *testing.T, h *harness, retryCount int) *eventlog.Record {
	t.Helper()
	rec, err := eventlog.NewRecord(context.Background(), "OrderPlaced", `{"orderId":"o-1"}`)
	require.NoError(t, err)
	rec.Status = eventlog.StatusRetrying
	rec.RetryCount = retryCount
	require.NoError(t, h.store.Insert(context.Background(), rec))
	return rec
}

func TestSweepSettlesInterruptedRetry(t *testing.T) {
	rh := &recordingHandler{}
	future := fixedClock{now: time.Now().UTC().Add(time.Hour)}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}},
		WithClock(future), WithPendingGrace(time.Minute), WithMaxRetries(3))
	insertRetrying(t, h, 1)
	ctx := context.Background()

	require.NoError(t, h.sweeper.SweepOnce(ctx))
	got := h.only(t)
	assert.Equal(t, eventlog.StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, ErrAttemptInterrupted.Error())
	assert.Equal(t, 0, rh.Calls())

	require.NoError(t, h.sweeper.SweepOnce(ctx))
	got = h.only(t)
	assert.Equal(t, eventlog.StatusSuccess, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, 1, rh.Calls())
}

func TestSweepDeadLettersInterruptedFinalRetry(t *testing.T) {
	rh := &recordingHandler{}
	future := fixedClock{now: time.Now().UTC().Add(time.Hour)}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}},
		WithClock(future), WithPendingGrace(time.Minute), WithMaxRetries(1))
	insertRetrying(t, h, 1)

	require.NoError(t, h.sweeper.SweepOnce(context.Background()))

	got := h.only(t)
	assert.Equal(t, eventlog.StatusDeadLetter, got.Status)
	assert.Contains(t, got.LastError, ErrAttemptInterrupted.Error())
	assert.Equal(t, 0, rh.Calls())
}

func TestSweepLeavesFreshRetrying(t *testing.T) {
	h := newHarness(t, []Handler{On("OrderPlaced", noop)}, WithPendingGrace(time.Hour))
	insertRetrying(t, h, 1)

	require.NoError(t, h.sweeper.SweepOnce(context.Background()))
	assert.Equal(t, eventlog.StatusRetrying, h.only(t).Status)
}

func TestRecoverAllDrainsEveryBatch(t *testing.T) {
	rh := &recordingHandler{}
	h := newHarness(t, []Handler{funcHandler{name: "OrderPlaced", fn: rh.handle}}, WithRetryBatch(1))
	ctx := context.Background()

	for _, id := range []string{"o-1", "o-2", "o-3"} {
		require.NoError(t, h.bus.Raise(ctx, orderPlaced{OrderID: id}))
	}
	insertRetrying(t, h, 0)

	n, err := h.dispatcher.RecoverAll(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 3, rh.Calls())

	pending, err := h.store.List(ctx, eventlog.Filter{Status: eventlog.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
	failed, err := h.store.List(ctx, eventlog.Filter{Status: eventlog.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
