package infrastructure

import (
	"context"

	"creatorpay/events"
)

// LocalEventPublisher delivers events to in-process subscribers on an events.Bus.
// It stands in for NATS when NATS_ENABLED is false.
type LocalEventPublisher struct {
	bus *events.Bus
}

// NewLocalEventPublisher creates a publisher over bus
func NewLocalEventPublisher(bus *events.Bus) *LocalEventPublisher {
	return &LocalEventPublisher{bus: bus}
}

// Publish emits the event on the bus. Handlers run asynchronously.
func (p *LocalEventPublisher) Publish(event events.Event) error {
	p.bus.Emit(context.Background(), event)
	return nil
}
