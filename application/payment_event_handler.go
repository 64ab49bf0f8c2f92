package application

import (
	"context"
	"errors"
	"fmt"

	"creatorpay/domain/entities"
	"creatorpay/events"

	log "github.com/sirupsen/logrus"
)

// PaymentEventHandler turns payment module events into ledger updates
type PaymentEventHandler struct {
	reconciler PaymentReconciler
}

// NewPaymentEventHandler creates a new payment event handler
func NewPaymentEventHandler(reconciler PaymentReconciler) *PaymentEventHandler {
	return &PaymentEventHandler{reconciler: reconciler}
}

// HandlePaymentConfirmed applies a confirmed payment. Errors that a redelivery
// cannot fix are logged and swallowed; anything else is returned so the
// message is redelivered.
func (h *PaymentEventHandler) HandlePaymentConfirmed(ctx context.Context, event events.Event) error {
	e, ok := asPaymentConfirmed(event)
	if !ok {
		return fmt.Errorf("unexpected event type %T for payment confirmation", event)
	}

	result, err := h.reconciler.Reconcile(ctx, toConfirmation(e))
	if err != nil {
		if isPermanent(err) {
			log.WithFields(log.Fields{
				"payment_id": e.PaymentID,
				"order_id":   e.OrderID,
				"error":      err,
			}).Warn("Dropping payment confirmation that cannot be applied")
			return nil
		}
		return fmt.Errorf("failed to reconcile payment %d: %w", e.PaymentID, err)
	}

	log.WithFields(log.Fields{
		"payment_id":    e.PaymentID,
		"outcome":       result.Outcome,
		"settlement_id": result.SettlementID,
	}).Debug("Handled payment confirmation")
	return nil
}

// HandlePaymentCancelled reverses a cancelled payment
func (h *PaymentEventHandler) HandlePaymentCancelled(ctx context.Context, event events.Event) error {
	e, ok := asPaymentCancelled(event)
	if !ok {
		return fmt.Errorf("unexpected event type %T for payment cancellation", event)
	}

	result, err := h.reconciler.ReconcileCancellation(ctx, entities.PaymentCancellation{
		PaymentID:   e.PaymentID,
		OrderID:     e.OrderID,
		Amount:      e.Amount,
		ApprovedAt:  e.ApprovedAt,
		CancelledAt: e.CancelledAt,
	})
	if err != nil {
		if isPermanent(err) {
			log.WithFields(log.Fields{
				"payment_id": e.PaymentID,
				"error":      err,
			}).Warn("Dropping payment cancellation that cannot be applied")
			return nil
		}
		return fmt.Errorf("failed to reverse payment %d: %w", e.PaymentID, err)
	}

	log.WithFields(log.Fields{
		"payment_id":    e.PaymentID,
		"outcome":       result.Outcome,
		"settlement_id": result.SettlementID,
	}).Debug("Handled payment cancellation")
	return nil
}

func toConfirmation(e events.PaymentConfirmedEvent) entities.PaymentConfirmation {
	return entities.PaymentConfirmation{
		PaymentID:  e.PaymentID,
		OrderID:    e.OrderID,
		Amount:     e.Amount,
		ApprovedAt: e.ApprovedAt,
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, entities.ErrSettlementClosed) ||
		errors.Is(err, entities.ErrInvalidAmount) ||
		errors.Is(err, entities.ErrInvalidPeriod)
}

// The subscriber hands out values; the local bus may carry pointers
func asPaymentConfirmed(event events.Event) (events.PaymentConfirmedEvent, bool) {
	switch e := event.(type) {
	case events.PaymentConfirmedEvent:
		return e, true
	case *events.PaymentConfirmedEvent:
		return *e, e != nil
	}
	return events.PaymentConfirmedEvent{}, false
}

func asPaymentCancelled(event events.Event) (events.PaymentCancelledEvent, bool) {
	switch e := event.(type) {
	case events.PaymentCancelledEvent:
		return e, true
	case *events.PaymentCancelledEvent:
		return *e, e != nil
	}
	return events.PaymentCancelledEvent{}, false
}
