// Package eventbus runs the in-process event choreography between the
// order and payment modules.
//
// A domain operation builds a typed Event and hands it to Raise. Raise
// persists a PENDING row in the event log and queues the row id; a
// Dispatcher worker looks up the Handler registered for the event name,
// decodes the payload and invokes it. Failed rows are picked up by the
// Sweeper, which retries them until the retry budget is spent and then
// dead-letters them.
//
//	registry, err := eventbus.NewRegistryBuilder().
//		Register(orderevents.Handlers(orders)...).
//		Register(paymentevents.Handlers(payments)...).
//		Build()
//	bus, err := eventbus.New(store, registry, eventbus.WithWorkers(4))
//	dispatcher := eventbus.NewDispatcher(bus)
//	sweeper := eventbus.NewSweeper(dispatcher)
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is a fact raised by one module for another. The name is the stable
// identity used for handler lookup and is stored in the event log, so it must
// never change once events have been persisted.
type Event interface {
	EventName() string
}

// Envelope is the serialised form of an event handed to a Handler.
type Envelope struct {
	// ID is the event log record id.
	ID         string
	Name       string
	Payload    json.RawMessage
	RetryCount int
	RaisedAt   time.Time
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrSerialization, e.Name, err)
	}
	return nil
}
