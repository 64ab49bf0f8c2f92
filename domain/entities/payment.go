package entities

import "time"

// PaymentConfirmation is the fact emitted by the payment module when a payment is approved
type PaymentConfirmation struct {
	PaymentID  int64
	OrderID    int64
	Amount     int64
	ApprovedAt time.Time
}

// PaymentCancellation is emitted when a previously confirmed payment is cancelled.
// ApprovedAt identifies the period the original confirmation was settled in.
type PaymentCancellation struct {
	PaymentID   int64
	OrderID     int64
	Amount      int64
	ApprovedAt  time.Time
	CancelledAt time.Time
}

// PaymentRecord is a confirmed payment with its derived creator, as read by the batch sweep
type PaymentRecord struct {
	PaymentID  int64
	OrderID    int64
	CreatorID  int64
	Amount     int64
	ApprovedAt time.Time
}

// PaymentCursor is the keyset position of the batch sweep, ordered by (creator, payment)
type PaymentCursor struct {
	CreatorID int64
	PaymentID int64
}

