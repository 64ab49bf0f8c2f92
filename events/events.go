package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Consumed from the payment module
	EventTypePaymentConfirmed EventType = "payment_confirmed"
	EventTypePaymentCancelled EventType = "payment_cancelled"

	// Published by the settlement engine
	EventTypeSettlementUpdated      EventType = "settlement_updated"
	EventTypeSettlementPaid         EventType = "settlement_paid"
	EventTypeSettlementPayoutFailed EventType = "settlement_payout_failed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// PaymentConfirmedEvent is the payment module's approval fact
type PaymentConfirmedEvent struct {
	PaymentID  int64     `json:"paymentId"`
	OrderID    int64     `json:"orderId"`
	Amount     int64     `json:"amount"`
	ApprovedAt time.Time `json:"approvedAt"`
}

func (e PaymentConfirmedEvent) Type() EventType {
	return EventTypePaymentConfirmed
}

// PaymentCancelledEvent is emitted when a confirmed payment is cancelled or refunded
type PaymentCancelledEvent struct {
	PaymentID   int64     `json:"paymentId"`
	OrderID     int64     `json:"orderId"`
	Amount      int64     `json:"amount"`
	ApprovedAt  time.Time `json:"approvedAt"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e PaymentCancelledEvent) Type() EventType {
	return EventTypePaymentCancelled
}

// SettlementUpdatedEvent is published whenever a settlement's totals change
type SettlementUpdatedEvent struct {
	SettlementID      int64  `json:"settlementId"`
	CreatorID         int64  `json:"creatorId"`
	Period            string `json:"period"`
	PaymentID         int64  `json:"paymentId,omitempty"`
	TotalSalesAmount  int64  `json:"totalSalesAmount"`
	PlatformFeeAmount int64  `json:"platformFeeAmount"`
	PayoutAmount      int64  `json:"payoutAmount"`
	Source            string `json:"source"` // "incremental", "batch" or "cancellation"
}

func (e SettlementUpdatedEvent) Type() EventType {
	return EventTypeSettlementUpdated
}

// SettlementPaidEvent is published after a payout succeeds
type SettlementPaidEvent struct {
	SettlementID int64     `json:"settlementId"`
	CreatorID    int64     `json:"creatorId"`
	Period       string    `json:"period"`
	PayoutAmount int64     `json:"payoutAmount"`
	RetryCount   int       `json:"retryCount"`
	SettledAt    time.Time `json:"settledAt"`
}

func (e SettlementPaidEvent) Type() EventType {
	return EventTypeSettlementPaid
}

// SettlementPayoutFailedEvent is published after a payout attempt fails
type SettlementPayoutFailedEvent struct {
	SettlementID int64     `json:"settlementId"`
	CreatorID    int64     `json:"creatorId"`
	Period       string    `json:"period"`
	PayoutAmount int64     `json:"payoutAmount"`
	RetryCount   int       `json:"retryCount"`
	Exhausted    bool      `json:"exhausted"`
	Reason       string    `json:"reason"`
	FailedAt     time.Time `json:"failedAt"`
}

func (e SettlementPayoutFailedEvent) Type() EventType {
	return EventTypeSettlementPayoutFailed
}
