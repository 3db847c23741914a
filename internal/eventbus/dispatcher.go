package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
)

// Dispatcher consumes queued record ids and runs their handlers.
type Dispatcher struct {
	bus *Bus
	cfg Config

	// inflight holds the ids of records whose handler is running here.
	inflight sync.Map
}

func NewDispatcher(bus *Bus) *Dispatcher {
	if bus == nil {
		panic("eventbus: nil Bus")
	}
	return &Dispatcher{bus: bus, cfg: bus.cfg}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.runWorker(ctx, worker)
		}(i)
	}
	d.cfg.Logger.InfoContext(ctx, "dispatcher started", "workers", d.cfg.Workers)

	wg.Wait()
	d.cfg.Logger.InfoContext(ctx, "dispatcher stopped")
	return nil
}

func (d *Dispatcher) runWorker(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.bus.queue:
			if err := d.Dispatch(ctx, id); err != nil && ctx.Err() == nil {
				d.cfg.Logger.ErrorContext(ctx, "dispatch failed", "worker", worker, "event_id", id, "err", err)
			}
		}
	}
}

// Dispatch delivers a freshly raised record. Only an unclaimed PENDING row
// (version 0) is taken; anything else was claimed by pending recovery or
// already handled. The returned error reports store failures only; handler
// failures are recorded on the row.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) error {
	rec, err := d.bus.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("eventbus: load %s: %w", id, err)
	}
	if rec.Status != eventlog.StatusPending || rec.Version != 0 {
		return nil
	}
	_, err = d.deliver(ctx, rec)
	return err
}

// deliver claims rec with a compare-and-set on the version it was read at,
// runs its handler and stores the outcome. It reports false when the record
// is running in this process or was claimed by someone else.
func (d *Dispatcher) deliver(ctx context.Context, rec *eventlog.Record) (bool, error) {
	if !d.acquire(rec.ID) {
		d.cfg.Logger.DebugContext(ctx, "event already in flight, skipping", "event", rec.EventName, "event_id", rec.ID)
		return false, nil
	}
	defer d.release(rec.ID)

	rec.Touch()
	if err := d.bus.store.Update(ctx, rec); err != nil {
		return false, d.skipConflict(ctx, rec, err)
	}

	herr := d.invoke(ctx, rec)
	var err error
	if herr == nil {
		err = rec.Transition(eventlog.StatusSuccess)
	} else {
		err = rec.Fail(herr)
	}
	if err != nil {
		return true, err
	}
	if err := d.bus.store.Update(ctx, rec); err != nil {
		return true, d.skipConflict(ctx, rec, err)
	}

	if herr != nil {
		d.cfg.Logger.WarnContext(ctx, "event handler failed",
			"event", rec.EventName, "event_id", rec.ID, "err", herr)
	}
	return true, nil
}

// Redeliver runs one retry attempt for a FAILED record: FAILED -> RETRYING
// with the counter bumped, then SUCCESS, FAILED, or DEAD_LETTER once the
// budget is spent. A record whose budget is already spent is dead-lettered
// without calling the handler.
func (d *Dispatcher) Redeliver(ctx context.Context, rec *eventlog.Record) error {
	if rec.Status != eventlog.StatusFailed {
		return nil
	}
	if !d.acquire(rec.ID) {
		return nil
	}
	defer d.release(rec.ID)

	if rec.RetryCount >= d.cfg.MaxRetries {
		if err := rec.Exhaust(); err != nil {
			return err
		}
		if err := d.bus.store.Update(ctx, rec); err != nil {
			return d.skipConflict(ctx, rec, err)
		}
		d.deadLettered(ctx, rec)
		return nil
	}

	if err := rec.Transition(eventlog.StatusRetrying); err != nil {
		return err
	}
	rec.IncreaseRetryCount()
	if err := d.bus.store.Update(ctx, rec); err != nil {
		return d.skipConflict(ctx, rec, err)
	}
	d.cfg.Metrics.EventRetried(rec.EventName)

	herr := d.invoke(ctx, rec)
	if err := d.settleAttempt(rec, herr); err != nil {
		return err
	}
	if err := d.bus.store.Update(ctx, rec); err != nil {
		return d.skipConflict(ctx, rec, err)
	}

	switch rec.Status {
	case eventlog.StatusSuccess:
		d.cfg.Logger.InfoContext(ctx, "event retry succeeded",
			"event", rec.EventName, "event_id", rec.ID, "retry_count", rec.RetryCount)
	case eventlog.StatusDeadLetter:
		d.deadLettered(ctx, rec)
	default:
		d.cfg.Logger.WarnContext(ctx, "event retry failed",
			"event", rec.EventName, "event_id", rec.ID, "retry_count", rec.RetryCount, "err", herr)
	}
	return nil
}

// settleAttempt moves a RETRYING record to the outcome of its attempt.
func (d *Dispatcher) settleAttempt(rec *eventlog.Record, herr error) error {
	switch {
	case herr == nil:
		return rec.Transition(eventlog.StatusSuccess)
	case rec.RetryCount >= d.cfg.MaxRetries:
		if err := rec.Transition(eventlog.StatusDeadLetter); err != nil {
			return err
		}
		rec.LastError = herr.Error()
		return nil
	default:
		return rec.Fail(herr)
	}
}

// RecoverPending dispatches up to one batch of PENDING records last touched
// before cutoff. A record claimed after it was listed is skipped.
func (d *Dispatcher) RecoverPending(ctx context.Context, cutoff time.Time) (int, error) {
	_, recovered, err := d.recoverPendingBatch(ctx, cutoff)
	return recovered, err
}

func (d *Dispatcher) recoverPendingBatch(ctx context.Context, cutoff time.Time) (listed, recovered int, err error) {
	recs, err := d.bus.store.List(ctx, eventlog.Filter{
		Status:        eventlog.StatusPending,
		UpdatedBefore: cutoff,
		Limit:         d.cfg.RetryBatch,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("eventbus: list pending: %w", err)
	}

	for _, rec := range recs {
		if ctx.Err() != nil {
			return len(recs), recovered, ctx.Err()
		}
		ok, err := d.deliver(ctx, rec)
		if err != nil {
			d.cfg.Logger.ErrorContext(ctx, "pending recovery failed", "event_id", rec.ID, "err", err)
			continue
		}
		if ok {
			recovered++
		}
	}
	if recovered > 0 {
		d.cfg.Logger.InfoContext(ctx, "recovered pending events", "count", recovered)
	}
	return len(recs), recovered, nil
}

// RecoverStalled settles up to one batch of RETRYING records last touched
// before cutoff. Their attempt was cut short, so each counts as a failed
// attempt: FAILED, or DEAD_LETTER when the budget is spent.
func (d *Dispatcher) RecoverStalled(ctx context.Context, cutoff time.Time) (int, error) {
	_, settled, err := d.recoverStalledBatch(ctx, cutoff)
	return settled, err
}

func (d *Dispatcher) recoverStalledBatch(ctx context.Context, cutoff time.Time) (listed, settled int, err error) {
	recs, err := d.bus.store.List(ctx, eventlog.Filter{
		Status:        eventlog.StatusRetrying,
		UpdatedBefore: cutoff,
		Limit:         d.cfg.RetryBatch,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("eventbus: list retrying: %w", err)
	}

	for _, rec := range recs {
		if ctx.Err() != nil {
			return len(recs), settled, ctx.Err()
		}
		ok, err := d.settleStalled(ctx, rec)
		if err != nil {
			d.cfg.Logger.ErrorContext(ctx, "stalled retry recovery failed", "event_id", rec.ID, "err", err)
			continue
		}
		if ok {
			settled++
		}
	}
	return len(recs), settled, nil
}

func (d *Dispatcher) settleStalled(ctx context.Context, rec *eventlog.Record) (bool, error) {
	if !d.acquire(rec.ID) {
		return false, nil
	}
	defer d.release(rec.ID)

	if err := d.settleAttempt(rec, ErrAttemptInterrupted); err != nil {
		return false, err
	}
	if err := d.bus.store.Update(ctx, rec); err != nil {
		return false, d.skipConflict(ctx, rec, err)
	}

	if rec.Status == eventlog.StatusDeadLetter {
		d.deadLettered(ctx, rec)
	} else {
		d.cfg.Logger.WarnContext(ctx, "interrupted retry marked failed",
			"event", rec.EventName, "event_id", rec.ID, "retry_count", rec.RetryCount)
	}
	return true, nil
}

// RecoverAll runs at boot. It settles every stalled RETRYING record and
// replays every PENDING record touched before cutoff, batch after batch,
// until a batch comes back short or makes no progress.
func (d *Dispatcher) RecoverAll(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		listed, settled, err := d.recoverStalledBatch(ctx, cutoff)
		total += settled
		if err != nil {
			return total, err
		}
		if listed < d.cfg.RetryBatch || settled == 0 {
			break
		}
	}
	for {
		listed, recovered, err := d.recoverPendingBatch(ctx, cutoff)
		total += recovered
		if err != nil {
			return total, err
		}
		if listed < d.cfg.RetryBatch || recovered == 0 {
			return total, nil
		}
	}
}

func (d *Dispatcher) acquire(id string) bool {
	_, running := d.inflight.LoadOrStore(id, struct{}{})
	return !running
}

func (d *Dispatcher) release(id string) {
	d.inflight.Delete(id)
}

// invoke runs the handler for rec and returns its error, if any. Missing
// handlers, panics and timeouts all come back as errors.
func (d *Dispatcher) invoke(ctx context.Context, rec *eventlog.Record) (err error) {
	start := time.Now()
	ctx, span := d.bus.tracer.Start(ctx, "eventbus.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithLinks(raiseLink(rec)...),
		trace.WithAttributes(
			attribute.String("event.name", rec.EventName),
			attribute.String("event.id", rec.ID),
			attribute.Int("event.retry_count", rec.RetryCount),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		}
		span.End()
		d.cfg.Metrics.HandlerCompleted(rec.EventName, err, time.Since(start))
	}()

	handler, err := d.bus.registry.Get(rec.EventName)
	if err != nil {
		d.cfg.Logger.ErrorContext(ctx, "no handler for logged event", "event", rec.EventName, "event_id", rec.ID)
		return err
	}

	if d.cfg.Deduper != nil {
		done, derr := d.cfg.Deduper.Delivered(ctx, rec.ID)
		if derr != nil {
			d.cfg.Logger.WarnContext(ctx, "dedupe lookup failed", "event_id", rec.ID, "err", derr)
		} else if done {
			d.cfg.Logger.InfoContext(ctx, "event already delivered, skipping handler", "event", rec.EventName, "event_id", rec.ID)
			return nil
		}
	}

	if err := d.call(ctx, handler, rec); err != nil {
		return &HandlerExecutionError{EventName: rec.EventName, RecordID: rec.ID, Err: err}
	}

	if d.cfg.Deduper != nil {
		if derr := d.cfg.Deduper.MarkDelivered(ctx, rec.ID); derr != nil {
			d.cfg.Logger.WarnContext(ctx, "dedupe mark failed", "event_id", rec.ID, "err", derr)
		}
	}
	return nil
}

func (d *Dispatcher) call(ctx context.Context, h Handler, rec *eventlog.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.cfg.Logger.ErrorContext(ctx, "event handler panic", "event", rec.EventName, "event_id", rec.ID, "panic", r)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	hctx := WithPublisher(ctx, d.bus)
	if d.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, d.cfg.HandlerTimeout)
		defer cancel()
	}

	return h.Handle(hctx, Envelope{
		ID:         rec.ID,
		Name:       rec.EventName,
		Payload:    json.RawMessage(rec.Payload),
		RetryCount: rec.RetryCount,
		RaisedAt:   rec.CreatedAt,
	})
}

func (d *Dispatcher) skipConflict(ctx context.Context, rec *eventlog.Record, err error) error {
	if errors.Is(err, eventlog.ErrConcurrentUpdate) {
		d.cfg.Logger.DebugContext(ctx, "event claimed elsewhere, skipping", "event", rec.EventName, "event_id", rec.ID)
		return nil
	}
	return fmt.Errorf("eventbus: update %s: %w", rec.ID, err)
}

func (d *Dispatcher) deadLettered(ctx context.Context, rec *eventlog.Record) {
	d.cfg.Metrics.EventDeadLettered(rec.EventName)
	d.cfg.Logger.ErrorContext(ctx, "event dead-lettered",
		"event", rec.EventName, "event_id", rec.ID, "retry_count", rec.RetryCount, "last_error", rec.LastError)
}

// raiseLink links the dispatch span to the span that raised the event.
func raiseLink(rec *eventlog.Record) []trace.Link {
	traceID, err := trace.TraceIDFromHex(rec.TraceID)
	if err != nil {
		return nil
	}
	spanID, err := trace.SpanIDFromHex(rec.SpanID)
	if err != nil {
		return nil
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return []trace.Link{{SpanContext: sc}}
}
