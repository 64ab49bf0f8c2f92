package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/events"
	"creatorpay/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// ReconcileOutcome describes what a reconciliation did to the ledger
type ReconcileOutcome string

const (
	// ReconcileOutcomeApplied means the payment changed the settlement total
	ReconcileOutcomeApplied ReconcileOutcome = "applied"
	// ReconcileOutcomeAlreadyApplied means a replay was detected and nothing changed
	ReconcileOutcomeAlreadyApplied ReconcileOutcome = "already_applied"
	// ReconcileOutcomeSkipped means the payment could not be attributed to a creator
	ReconcileOutcomeSkipped ReconcileOutcome = "skipped"
	// ReconcileOutcomeNotSettled means a cancellation found nothing to reverse
	ReconcileOutcomeNotSettled ReconcileOutcome = "not_settled"
)

// ReconcileResult is the ledger state after a reconciliation
type ReconcileResult struct {
	Outcome          ReconcileOutcome
	SettlementID     int64
	CreatorID        int64
	Period           string
	Created          bool
	TotalSalesAmount int64
}

// IncrementalReconciler applies single payment events to the ledger as they happen
type IncrementalReconciler struct {
	uowFactory UnitOfWorkFactory
	location   *time.Location
}

// NewIncrementalReconciler creates a new incremental reconciler
func NewIncrementalReconciler(uowFactory UnitOfWorkFactory, location *time.Location) *IncrementalReconciler {
	if location == nil {
		location = time.UTC
	}
	return &IncrementalReconciler{
		uowFactory: uowFactory,
		location:   location,
	}
}

// Reconcile applies a confirmed payment to its creator's settlement for the
// period containing ApprovedAt. Replays of the same payment are no-ops.
// Unattributable payments are skipped without error.
func (r *IncrementalReconciler) Reconcile(ctx context.Context, payment entities.PaymentConfirmation) (*ReconcileResult, error) {
	if payment.Amount < 0 {
		return nil, fmt.Errorf("%w: payment %d has amount %d", entities.ErrInvalidAmount, payment.PaymentID, payment.Amount)
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	creatorID, err := uow.CreatorRepository().ResolveCreatorID(ctx, payment.OrderID)
	if errors.Is(err, entities.ErrUnattributableCreator) {
		log.WithFields(log.Fields{
			"payment_id": payment.PaymentID,
			"order_id":   payment.OrderID,
		}).Warn("Skipping payment with no attributable creator")
		observability.GetMetrics().RecordReconciliation(observability.SourceIncremental, observability.OutcomeSkipped)
		return &ReconcileResult{Outcome: ReconcileOutcomeSkipped}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve creator for order %d: %w", payment.OrderID, err)
	}

	period := entities.PeriodOf(payment.ApprovedAt, r.location)
	ledger := NewLedgerForUnitOfWork(uow)

	settlement, created, err := ledger.FindOrCreateForUpdate(ctx, creatorID, period)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		SettlementID: settlement.ID,
		CreatorID:    creatorID,
		Period:       period,
		Created:      created,
	}

	if settlement.IsCompleted() {
		// Late confirmation for a period already paid out; an operator has to settle it by hand
		log.WithFields(log.Fields{
			"settlement_id": settlement.ID,
			"payment_id":    payment.PaymentID,
			"amount":        payment.Amount,
			"period":        period,
		}).Warn("Payment confirmed for a completed settlement, leaving for operator follow-up")
		result.TotalSalesAmount = settlement.TotalSalesAmount
		return result, fmt.Errorf("%w: settlement %d", entities.ErrSettlementClosed, settlement.ID)
	}

	applied, err := ledger.RecordDetailIfAbsent(ctx, settlement, payment.PaymentID, payment.Amount)
	if err != nil {
		return nil, err
	}

	if !applied {
		result.Outcome = ReconcileOutcomeAlreadyApplied
		result.TotalSalesAmount = settlement.TotalSalesAmount
		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		log.WithFields(log.Fields{
			"payment_id":    payment.PaymentID,
			"settlement_id": settlement.ID,
		}).Debug("Payment already applied to settlement")
		observability.GetMetrics().RecordReconciliation(observability.SourceIncremental, observability.OutcomeAlreadyApplied)
		return result, nil
	}

	if err := ledger.AddSales(ctx, settlement, payment.Amount); err != nil {
		return nil, err
	}

	if err := uow.EventBus().Publish(events.SettlementUpdatedEvent{
		SettlementID:      settlement.ID,
		CreatorID:         creatorID,
		Period:            period,
		PaymentID:         payment.PaymentID,
		TotalSalesAmount:  settlement.TotalSalesAmount,
		PlatformFeeAmount: settlement.PlatformFeeAmount,
		PayoutAmount:      settlement.PayoutAmount,
		Source:            observability.SourceIncremental,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish settlement update: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Outcome = ReconcileOutcomeApplied
	result.TotalSalesAmount = settlement.TotalSalesAmount

	log.WithFields(log.Fields{
		"payment_id":    payment.PaymentID,
		"settlement_id": settlement.ID,
		"creator_id":    creatorID,
		"period":        period,
		"amount":        payment.Amount,
		"total":         settlement.TotalSalesAmount,
		"created":       created,
	}).Info("Applied payment to settlement")
	observability.GetMetrics().RecordReconciliation(observability.SourceIncremental, observability.OutcomeApplied)

	return result, nil
}

// HandlePaymentConfirmed is the best-effort hook for the payment flow. It never
// fails the caller; anything missed here is picked up by the batch sweep.
func (r *IncrementalReconciler) HandlePaymentConfirmed(ctx context.Context, payment entities.PaymentConfirmation) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{
				"payment_id": payment.PaymentID,
				"panic":      rec,
			}).Error("Incremental reconciliation panicked")
		}
	}()

	if _, err := r.Reconcile(ctx, payment); err != nil {
		log.WithFields(log.Fields{
			"payment_id": payment.PaymentID,
			"order_id":   payment.OrderID,
			"error":      err,
		}).Error("Incremental reconciliation failed, batch sweep will cover it")
		observability.GetMetrics().RecordReconciliation(observability.SourceIncremental, observability.OutcomeFailed)
	}
}

// ReconcileCancellation takes a cancelled payment back out of the settlement it
// was applied to. Replays are no-ops. Completed settlements are not adjusted.
func (r *IncrementalReconciler) ReconcileCancellation(ctx context.Context, cancellation entities.PaymentCancellation) (*ReconcileResult, error) {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	creatorID, err := uow.CreatorRepository().ResolveCreatorID(ctx, cancellation.OrderID)
	if errors.Is(err, entities.ErrUnattributableCreator) {
		observability.GetMetrics().RecordReconciliation(observability.SourceCancellation, observability.OutcomeSkipped)
		return &ReconcileResult{Outcome: ReconcileOutcomeSkipped}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve creator for order %d: %w", cancellation.OrderID, err)
	}

	period := entities.PeriodOf(cancellation.ApprovedAt, r.location)
	ledger := NewLedgerForUnitOfWork(uow)

	settlement, err := ledger.FindForUpdate(ctx, creatorID, period)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return &ReconcileResult{Outcome: ReconcileOutcomeNotSettled, CreatorID: creatorID, Period: period}, nil
	}

	result := &ReconcileResult{
		SettlementID:     settlement.ID,
		CreatorID:        creatorID,
		Period:           period,
		TotalSalesAmount: settlement.TotalSalesAmount,
	}

	detail, err := ledger.FindDetail(ctx, settlement, cancellation.PaymentID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		result.Outcome = ReconcileOutcomeNotSettled
		return result, nil
	}

	if settlement.IsCompleted() {
		log.WithFields(log.Fields{
			"settlement_id": settlement.ID,
			"payment_id":    cancellation.PaymentID,
			"amount":        detail.Amount,
		}).Warn("Payment cancelled after payout, leaving for operator follow-up")
		return result, fmt.Errorf("%w: settlement %d", entities.ErrSettlementClosed, settlement.ID)
	}

	// The detail amount is what was actually added, so it is what gets taken back
	reversed, err := ledger.RecordReversalIfAbsent(ctx, settlement, cancellation.PaymentID, detail.Amount)
	if err != nil {
		return nil, err
	}
	if !reversed {
		result.Outcome = ReconcileOutcomeAlreadyApplied
		observability.GetMetrics().RecordReconciliation(observability.SourceCancellation, observability.OutcomeAlreadyApplied)
		return result, nil
	}

	if err := ledger.SubtractSales(ctx, settlement, detail.Amount); err != nil {
		return nil, err
	}

	if err := uow.EventBus().Publish(events.SettlementUpdatedEvent{
		SettlementID:      settlement.ID,
		CreatorID:         creatorID,
		Period:            period,
		PaymentID:         cancellation.PaymentID,
		TotalSalesAmount:  settlement.TotalSalesAmount,
		PlatformFeeAmount: settlement.PlatformFeeAmount,
		PayoutAmount:      settlement.PayoutAmount,
		Source:            observability.SourceCancellation,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish settlement update: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Outcome = ReconcileOutcomeApplied
	result.TotalSalesAmount = settlement.TotalSalesAmount

	log.WithFields(log.Fields{
		"payment_id":    cancellation.PaymentID,
		"settlement_id": settlement.ID,
		"amount":        detail.Amount,
		"total":         settlement.TotalSalesAmount,
	}).Info("Reversed cancelled payment from settlement")
	observability.GetMetrics().RecordReconciliation(observability.SourceCancellation, observability.OutcomeApplied)

	return result, nil
}
