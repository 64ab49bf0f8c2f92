package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"creatorpay/events"
	"creatorpay/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// MessageSubscriber delivers raw message bytes from a subject
type MessageSubscriber interface {
	Subscribe(subject string, handler func([]byte) error) error
}

// NATSEventSubscriber subscribes to NATS subjects and deserializes events for application handlers
type NATSEventSubscriber struct {
	client        MessageSubscriber
	subjectMapper *EventSubjectMapper
	handlers      map[string]func(context.Context, events.Event) error
}

// NewNATSEventSubscriber creates a new NATS event subscriber
func NewNATSEventSubscriber(client MessageSubscriber, subjectMapper *EventSubjectMapper) *NATSEventSubscriber {
	return &NATSEventSubscriber{
		client:        client,
		subjectMapper: subjectMapper,
		handlers:      make(map[string]func(context.Context, events.Event) error),
	}
}

// Subscribe registers a handler for a specific event type
func (s *NATSEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	subject := s.subjectMapper.MapEventTypeToSubject(eventType)
	s.handlers[subject] = handler

	log.WithFields(log.Fields{
		"eventType": eventType,
		"subject":   subject,
	}).Info("Registering event handler for subject")

	return s.client.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data)
	})
}

// handleMessage deserializes a NATS message and routes it to the registered handler.
// A returned error makes the transport redeliver the message.
func (s *NATSEventSubscriber) handleMessage(subject string, data []byte) error {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to unmarshal event envelope")
		return fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	eventType := events.EventType(envelope.EventType)
	observability.GetMetrics().RecordNATSMessageReceived(envelope.EventType)

	event, err := deserializeEvent(eventType, envelope.Payload)
	if err != nil {
		log.WithFields(log.Fields{
			"subject":     subject,
			"eventType":   eventType,
			"eventId":     envelope.EventID,
			"error":       err,
			"payloadSize": len(envelope.Payload),
		}).Error("Failed to deserialize event payload")
		return fmt.Errorf("failed to deserialize event payload: %w", err)
	}

	handler, exists := s.handlers[subject]
	if !exists {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
		}).Warn("No handler registered for subject")
		return fmt.Errorf("no handler registered for subject %s", subject)
	}

	if err := handler(context.Background(), event); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Event handler failed")
		return err
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"eventType": eventType,
		"eventId":   envelope.EventID,
	}).Debug("Successfully processed NATS event")

	return nil
}

// deserializeEvent decodes the payload into the concrete event for its type
func deserializeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	switch eventType {
	case events.EventTypePaymentConfirmed:
		var e events.PaymentConfirmedEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case events.EventTypePaymentCancelled:
		var e events.PaymentCancelledEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case events.EventTypeSettlementUpdated:
		var e events.SettlementUpdatedEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case events.EventTypeSettlementPaid:
		var e events.SettlementPaidEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case events.EventTypeSettlementPayoutFailed:
		var e events.SettlementPayoutFailedEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
