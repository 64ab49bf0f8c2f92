package application

import (
	"context"
	"fmt"

	"creatorpay/events"

	log "github.com/sirupsen/logrus"
)

// RegisterPaymentSubscriptions wires the payment handlers to a durable subscriber
func RegisterPaymentSubscriptions(subscriber EventSubscriber, handler *PaymentEventHandler) error {
	if err := subscriber.Subscribe(events.EventTypePaymentConfirmed, handler.HandlePaymentConfirmed); err != nil {
		return fmt.Errorf("failed to subscribe to payment confirmations: %w", err)
	}
	if err := subscriber.Subscribe(events.EventTypePaymentCancelled, handler.HandlePaymentCancelled); err != nil {
		return fmt.Errorf("failed to subscribe to payment cancellations: %w", err)
	}
	return nil
}

// RegisterLocalPaymentSubscriptions wires the payment handlers to the in-process bus.
// There is no redelivery here. Confirmations go through the best-effort hook so
// the payment flow never sees a failure; the batch sweep covers anything missed.
func RegisterLocalPaymentSubscriptions(bus *events.Bus, reconciler BestEffortReconciler, handler *PaymentEventHandler) {
	bus.Subscribe(events.EventTypePaymentConfirmed, func(ctx context.Context, event events.Event) {
		e, ok := asPaymentConfirmed(event)
		if !ok {
			log.WithField("event_type", fmt.Sprintf("%T", event)).Error("Unexpected event for payment confirmation")
			return
		}
		reconciler.HandlePaymentConfirmed(ctx, toConfirmation(e))
	})
	bus.Subscribe(events.EventTypePaymentCancelled, func(ctx context.Context, event events.Event) {
		if err := handler.HandlePaymentCancelled(ctx, event); err != nil {
			log.WithError(err).Error("Payment cancellation not applied")
		}
	})
}
