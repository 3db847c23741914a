package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Handler processes one event name. Handlers are invoked at least once per
// raised event and must tolerate redelivery.
type Handler interface {
	EventName() string
	Handle(ctx context.Context, env Envelope) error
}

type typedHandler[T Event] struct {
	name string
	fn   func(ctx context.Context, ev T) error
}

// On adapts a typed function to Handler. The envelope payload is decoded
// into a T before fn is called.
func On[T Event](name string, fn func(ctx context.Context, ev T) error) Handler {
	return &typedHandler[T]{name: name, fn: fn}
}

func (h *typedHandler[T]) EventName() string { return h.name }

func (h *typedHandler[T]) Handle(ctx context.Context, env Envelope) error {
	var ev T
	if err := env.Decode(&ev); err != nil {
		return err
	}
	return h.fn(ctx, ev)
}

// RegistryBuilder collects handlers contributed by each module. It is only
// used during startup; Build freezes the result.
type RegistryBuilder struct {
	handlers []Handler
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// Register appends handlers. Validation happens in Build.
func (b *RegistryBuilder) Register(handlers ...Handler) *RegistryBuilder {
	b.handlers = append(b.handlers, handlers...)
	return b
}

// Build validates that every handler has a name and that no name is claimed
// twice, then returns an immutable Registry.
func (b *RegistryBuilder) Build() (*Registry, error) {
	byName := make(map[string]Handler, len(b.handlers))
	var errs []error
	for _, h := range b.handlers {
		if h == nil {
			errs = append(errs, fmt.Errorf("%w: nil handler", ErrInvalidEvent))
			continue
		}
		name := h.EventName()
		if name == "" {
			errs = append(errs, fmt.Errorf("%w: handler with empty event name", ErrInvalidEvent))
			continue
		}
		if _, exists := byName[name]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateHandler, name))
			continue
		}
		byName[name] = h
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Registry{handlers: byName}, nil
}

// Registry maps event names to handlers. It is safe for concurrent reads.
type Registry struct {
	handlers map[string]Handler
}

// Get returns the handler for name or ErrNoHandlerRegistered.
func (r *Registry) Get(name string) (Handler, error) {
	if r != nil {
		if h, ok := r.handlers[name]; ok {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoHandlerRegistered, name)
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered event names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require fails unless every name has a handler. main calls it with the
// saga event names before accepting traffic.
func (r *Registry) Require(names ...string) error {
	var errs []error
	for _, name := range names {
		if !r.Has(name) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoHandlerRegistered, name))
		}
	}
	return errors.Join(errs...)
}
