package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
)

const tracerName = "github.com/jcmexdev/ecommerce-choreography/internal/eventbus"

// Bus is the publish entrypoint. A zero Bus is not usable: Raise on it
// fails with ErrPublisherNotInitialized.
type Bus struct {
	store    eventlog.Store
	registry *Registry
	validate *validator.Validate
	tracer   trace.Tracer
	queue    chan string
	cfg      Config
}

var _ Publisher = (*Bus)(nil)

// New builds a Bus on top of an event log store and a frozen registry.
func New(store eventlog.Store, registry *Registry, opts ...Option) (*Bus, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil event log store", ErrPublisherNotInitialized)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrPublisherNotInitialized)
	}

	cfg := Config{MaxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Bus{
		store:    store,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer(tracerName),
		queue:    make(chan string, cfg.QueueSize),
		cfg:      cfg,
	}, nil
}

// Registry returns the handler registry the bus dispatches to.
func (b *Bus) Registry() *Registry { return b.registry }

// Store returns the event log the bus writes to.
func (b *Bus) Store() eventlog.Store { return b.store }

// Raise validates ev, persists it as a PENDING record and queues it for
// dispatch. It returns once the record is durable; handler outcomes are
// never reported back to the caller.
func (b *Bus) Raise(ctx context.Context, ev Event) error {
	if b == nil || b.store == nil || b.registry == nil || b.queue == nil {
		return ErrPublisherNotInitialized
	}
	if isNil(ev) {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	name := ev.EventName()
	if name == "" {
		return fmt.Errorf("%w: empty event name", ErrInvalidEvent)
	}
	if err := b.validateEvent(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEvent, name, err)
	}
	if !b.registry.Has(name) {
		b.cfg.Logger.ErrorContext(ctx, "raise without handler", "event", name)
		return fmt.Errorf("%w: %s", ErrNoHandlerRegistered, name)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSerialization, name, err)
	}

	ctx, span := b.tracer.Start(ctx, "eventbus.raise", trace.WithAttributes(
		attribute.String("event.name", name),
	))
	defer span.End()

	rec, err := eventlog.NewRecord(ctx, name, string(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := b.store.Insert(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist event")
		return fmt.Errorf("eventbus: persist %s: %w", name, err)
	}
	span.SetAttributes(attribute.String("event.id", rec.ID))

	b.cfg.Metrics.EventRaised(name)
	b.cfg.Logger.DebugContext(ctx, "event raised", "event", name, "event_id", rec.ID)

	select {
	case b.queue <- rec.ID:
	default:
		b.cfg.Metrics.EventDeferred(name)
		b.cfg.Logger.WarnContext(ctx, "dispatch queue full, event left for pending recovery",
			"event", name, "event_id", rec.ID)
	}
	return nil
}

func (b *Bus) validateEvent(ev Event) error {
	err := b.validate.Struct(ev)
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// not a struct; nothing to validate
		return nil
	}
	return err
}

func isNil(ev Event) bool {
	if ev == nil {
		return true
	}
	v := reflect.ValueOf(ev)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
