package application

import (
	"context"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/events"
	"creatorpay/service"
)

// JobLock grants one replica at a time the right to run a scheduled job
type JobLock interface {
	// TryAcquire takes the named lock for ttl. acquired is false when another holder has it.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// EventSubscriber delivers events of a type to a handler. A handler error
// asks the transport to redeliver the event.
type EventSubscriber interface {
	Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error
}

// PaymentReconciler applies payment facts to the settlement ledger
type PaymentReconciler interface {
	Reconcile(ctx context.Context, payment entities.PaymentConfirmation) (*service.ReconcileResult, error)
	ReconcileCancellation(ctx context.Context, cancellation entities.PaymentCancellation) (*service.ReconcileResult, error)
}

// BestEffortReconciler applies a confirmed payment without ever failing the caller
type BestEffortReconciler interface {
	HandlePaymentConfirmed(ctx context.Context, payment entities.PaymentConfirmation)
}

// BatchRunner sweeps a closed period
type BatchRunner interface {
	RunPreviousPeriod(ctx context.Context, now time.Time) (*service.BatchRunSummary, error)
}

// RetryRunner re-attempts failed payouts that are due
type RetryRunner interface {
	RunOnce(ctx context.Context) (*service.RetryRunSummary, error)
}
