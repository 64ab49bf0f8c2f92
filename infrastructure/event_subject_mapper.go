package infrastructure

import (
	"fmt"

	"creatorpay/events"
)

const (
	SubjectPaymentConfirmed       = "payments.confirmed"
	SubjectPaymentCancelled       = "payments.cancelled"
	SubjectSettlementUpdated      = "settlement.updated"
	SubjectSettlementPaid         = "settlement.paid"
	SubjectSettlementPayoutFailed = "settlement.payout_failed"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventTypeToSubject converts an event type to its NATS subject
func (m *EventSubjectMapper) MapEventTypeToSubject(eventType events.EventType) string {
	switch eventType {
	case events.EventTypePaymentConfirmed:
		return SubjectPaymentConfirmed
	case events.EventTypePaymentCancelled:
		return SubjectPaymentCancelled
	case events.EventTypeSettlementUpdated:
		return SubjectSettlementUpdated
	case events.EventTypeSettlementPaid:
		return SubjectSettlementPaid
	case events.EventTypeSettlementPayoutFailed:
		return SubjectSettlementPayoutFailed
	default:
		return fmt.Sprintf("unknown.%s", eventType)
	}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return m.MapEventTypeToSubject(event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case SubjectPaymentConfirmed:
		return events.EventTypePaymentConfirmed
	case SubjectPaymentCancelled:
		return events.EventTypePaymentCancelled
	case SubjectSettlementUpdated:
		return events.EventTypeSettlementUpdated
	case SubjectSettlementPaid:
		return events.EventTypeSettlementPaid
	case SubjectSettlementPayoutFailed:
		return events.EventTypeSettlementPayoutFailed
	default:
		return events.EventType(subject)
	}
}

// GetConsumedSubjects returns the subjects the engine listens on
func (m *EventSubjectMapper) GetConsumedSubjects() []string {
	return []string{
		SubjectPaymentConfirmed,
		SubjectPaymentCancelled,
	}
}

// GetPublishedSubjects returns the subjects the engine publishes to
func (m *EventSubjectMapper) GetPublishedSubjects() []string {
	return []string{
		SubjectSettlementUpdated,
		SubjectSettlementPaid,
		SubjectSettlementPayoutFailed,
	}
}
