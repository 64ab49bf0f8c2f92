package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"creatorpay/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	subject string
	data    []byte
}

// fakeMessageBus records publishes and hands subscriptions back to the test
type fakeMessageBus struct {
	sent       []sentMessage
	publishErr error
	handlers   map[string]func([]byte) error
}

func newFakeMessageBus() *fakeMessageBus {
	return &fakeMessageBus{handlers: make(map[string]func([]byte) error)}
}

func (f *fakeMessageBus) Publish(ctx context.Context, subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.sent = append(f.sent, sentMessage{subject: subject, data: data})
	return nil
}

func (f *fakeMessageBus) Subscribe(subject string, handler func([]byte) error) error {
	f.handlers[subject] = handler
	return nil
}

func TestNATSEventPublisher_Publish(t *testing.T) {
	bus := newFakeMessageBus()
	publisher := NewNATSEventPublisher(bus, NewEventSubjectMapper())

	paidAt := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	err := publisher.Publish(events.SettlementPaidEvent{
		SettlementID: 42,
		CreatorID:    7,
		Period:       "2024-05",
		PayoutAmount: 7200,
		SettledAt:    paidAt,
	})
	require.NoError(t, err)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, SubjectSettlementPaid, bus.sent[0].subject)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(bus.sent[0].data, &envelope))
	assert.Equal(t, string(events.EventTypeSettlementPaid), envelope.EventType)
	assert.Equal(t, "creatorpay", envelope.SourceService)
	_, err = uuid.Parse(envelope.EventID)
	assert.NoError(t, err)

	var payload events.SettlementPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, int64(42), payload.SettlementID)
	assert.Equal(t, int64(7200), payload.PayoutAmount)
	assert.True(t, paidAt.Equal(payload.SettledAt))
}

func TestNATSEventPublisher_LocalHandlers(t *testing.T) {
	bus := newFakeMessageBus()
	publisher := NewNATSEventPublisher(bus, NewEventSubjectMapper())

	var received []events.Event
	publisher.RegisterLocalHandler(events.EventTypeSettlementUpdated, func(ctx context.Context, e events.Event) error {
		received = append(received, e)
		return errors.New("local handler failure does not block publishing")
	})

	require.NoError(t, publisher.Publish(events.SettlementUpdatedEvent{SettlementID: 1}))
	require.NoError(t, publisher.Publish(events.SettlementPaidEvent{SettlementID: 1}))

	assert.Len(t, received, 1)
	assert.Len(t, bus.sent, 2)
}

func TestNATSEventPublisher_Errors(t *testing.T) {
	t.Run("no stream is not an error", func(t *testing.T) {
		bus := newFakeMessageBus()
		bus.publishErr = errors.New("nats: no response from stream")
		publisher := NewNATSEventPublisher(bus, NewEventSubjectMapper())

		assert.NoError(t, publisher.Publish(events.SettlementUpdatedEvent{SettlementID: 1}))
	})

	t.Run("other transport errors surface", func(t *testing.T) {
		bus := newFakeMessageBus()
		bus.publishErr = errors.New("nats: connection closed")
		publisher := NewNATSEventPublisher(bus, NewEventSubjectMapper())

		assert.Error(t, publisher.Publish(events.SettlementUpdatedEvent{SettlementID: 1}))
	})
}
