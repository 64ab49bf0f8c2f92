package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatorpay/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSEventSubscriber_RoundTrip(t *testing.T) {
	bus := newFakeMessageBus()
	mapper := NewEventSubjectMapper()
	subscriber := NewNATSEventSubscriber(bus, mapper)
	publisher := NewNATSEventPublisher(bus, mapper)

	var got events.PaymentConfirmedEvent
	err := subscriber.Subscribe(events.EventTypePaymentConfirmed, func(ctx context.Context, e events.Event) error {
		got = e.(events.PaymentConfirmedEvent)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, bus.handlers, SubjectPaymentConfirmed)

	approvedAt := time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC)
	require.NoError(t, publisher.Publish(events.PaymentConfirmedEvent{
		PaymentID:  9001,
		OrderID:    500,
		Amount:     5000,
		ApprovedAt: approvedAt,
	}))
	require.Len(t, bus.sent, 1)

	require.NoError(t, bus.handlers[SubjectPaymentConfirmed](bus.sent[0].data))
	assert.Equal(t, int64(9001), got.PaymentID)
	assert.Equal(t, int64(500), got.OrderID)
	assert.Equal(t, int64(5000), got.Amount)
	assert.True(t, approvedAt.Equal(got.ApprovedAt))
}

func TestNATSEventSubscriber_HandleMessageErrors(t *testing.T) {
	bus := newFakeMessageBus()
	subscriber := NewNATSEventSubscriber(bus, NewEventSubjectMapper())

	handlerErr := errors.New("database unavailable")
	require.NoError(t, subscriber.Subscribe(events.EventTypePaymentCancelled, func(ctx context.Context, e events.Event) error {
		return handlerErr
	}))

	cancelled, _, err := marshalEnvelope(events.PaymentCancelledEvent{PaymentID: 1})
	require.NoError(t, err)
	unknown, _, err := marshalEnvelope(fakeEvent{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		subject string
		data    []byte
		wantErr error
	}{
		{name: "garbage envelope", subject: SubjectPaymentCancelled, data: []byte("{not json")},
		{name: "unknown event type", subject: SubjectPaymentCancelled, data: unknown},
		{name: "no handler for subject", subject: SubjectPaymentConfirmed, data: cancelled},
		{name: "handler error is returned for redelivery", subject: SubjectPaymentCancelled, data: cancelled, wantErr: handlerErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := subscriber.handleMessage(tt.subject, tt.data)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

type fakeEvent struct{}

func (fakeEvent) Type() events.EventType { return "something_else" }

func TestEventSubjectMapper(t *testing.T) {
	mapper := NewEventSubjectMapper()

	for _, eventType := range []events.EventType{
		events.EventTypePaymentConfirmed,
		events.EventTypePaymentCancelled,
		events.EventTypeSettlementUpdated,
		events.EventTypeSettlementPaid,
		events.EventTypeSettlementPayoutFailed,
	} {
		subject := mapper.MapEventTypeToSubject(eventType)
		assert.Equal(t, eventType, mapper.MapSubjectToEventType(subject), subject)
	}

	assert.Equal(t, "unknown.something_else", mapper.MapEventToSubject(fakeEvent{}))
	assert.ElementsMatch(t, []string{"payments.confirmed", "payments.cancelled"}, mapper.GetConsumedSubjects())
	assert.Len(t, mapper.GetPublishedSubjects(), 3)
	assert.Equal(t, "creatorpay-payments_confirmed", consumerName("payments.confirmed"))
}
