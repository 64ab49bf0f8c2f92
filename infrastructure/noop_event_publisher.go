package infrastructure

import (
	"creatorpay/events"
)

// NoopEventPublisher is an event publisher that does nothing.
// Used by one-off CLI commands where nobody listens for settlement events.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-op event publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish does nothing with the event
func (n *NoopEventPublisher) Publish(event events.Event) error {
	return nil
}
