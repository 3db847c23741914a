package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func fixedClock(t *testing.T) *time.Time {
	t.Helper()
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := nowFunc
	nowFunc = func() time.Time { return current }
	t.Cleanup(func() { nowFunc = prev })
	return &current
}

func TestNewRecordStartsPending(t *testing.T) {
	now := fixedClock(t)

	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{"orderId":"o-1"}`)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Equal(t, *now, rec.CreatedAt)
	assert.Equal(t, *now, rec.UpdatedAt)
	assert.Empty(t, rec.TraceID)
}

func TestNewRecordValidation(t *testing.T) {
	_, err := NewRecord(context.Background(), "", `{}`)
	require.ErrorIs(t, err, ErrEventNameRequired)

	_, err = NewRecord(context.Background(), "PaymentCompleted", "")
	require.ErrorIs(t, err, ErrPayloadRequired)
}

func TestNewRecordCapturesTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "raise")
	defer span.End()

	rec, err := NewRecord(ctx, "PaymentCompleted", `{}`)
	require.NoError(t, err)
	assert.Equal(t, span.SpanContext().TraceID().String(), rec.TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), rec.SpanID)
}

func TestRecordTransitionAdvancesUpdatedAt(t *testing.T) {
	now := fixedClock(t)
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)

	*now = now.Add(time.Second)
	require.NoError(t, rec.Fail(errors.New("boom")))

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "boom", rec.LastError)
	assert.Equal(t, *now, rec.UpdatedAt)
}

func TestRecordUpdatedAtIsStrictlyMonotonic(t *testing.T) {
	fixedClock(t)
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)

	before := rec.UpdatedAt
	rec.IncreaseRetryCount()
	assert.True(t, rec.UpdatedAt.After(before))
}

func TestRecordRejectsIllegalTransition(t *testing.T) {
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)
	require.NoError(t, rec.Fail(errors.New("boom")))

	err = rec.Transition(StatusSuccess)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StatusFailed, rec.Status)
}

func TestRecordRetryCycle(t *testing.T) {
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)

	require.NoError(t, rec.Fail(errors.New("boom")))
	assert.Equal(t, 0, rec.RetryCount)

	require.NoError(t, rec.Transition(StatusRetrying))
	rec.IncreaseRetryCount()
	require.NoError(t, rec.Transition(StatusSuccess))

	assert.Equal(t, 1, rec.RetryCount)
	assert.Empty(t, rec.LastError)
	assert.True(t, rec.Status.IsTerminal())
}

func TestRecordSetRetryCount(t *testing.T) {
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)

	require.ErrorIs(t, rec.SetRetryCount(-1), ErrNegativeRetryCount)
	require.NoError(t, rec.SetRetryCount(2))
	require.ErrorIs(t, rec.SetRetryCount(1), ErrRetryCountDecrease)
	assert.Equal(t, 2, rec.RetryCount)
}

func TestRecordExhaustOnlyFromFailed(t *testing.T) {
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)

	require.ErrorIs(t, rec.Exhaust(), ErrIllegalTransition)

	require.NoError(t, rec.Fail(errors.New("boom")))
	require.NoError(t, rec.Exhaust())
	assert.Equal(t, StatusDeadLetter, rec.Status)
	assert.False(t, rec.Status.CanTransitionTo(StatusRetrying))
}

func TestRecordClone(t *testing.T) {
	rec, err := NewRecord(context.Background(), "PaymentCompleted", `{}`)
	require.NoError(t, err)

	c := rec.Clone()
	c.Status = StatusSuccess
	assert.Equal(t, StatusPending, rec.Status)
}
