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

const defaultBatchPageSize = 500

// BatchRunSummary reports what one batch sweep did
type BatchRunSummary struct {
	Period             string
	GroupsSeen         int
	SettlementsCreated int
	SkippedExisting    int
	GroupsFailed       int
	PaymentsSettled    int
	PaymentsDropped    int64
	PayoutsSucceeded   int
	PayoutsFailed      int
	Duration           time.Duration
}

// BatchReconciler sweeps every confirmed payment of a closed period and creates
// the settlements the incremental path did not.
type BatchReconciler struct {
	uowFactory UnitOfWorkFactory
	payouts    PayoutRunner
	location   *time.Location
	pageSize   int
	runs       BatchRunRecorder
	now        func() time.Time
}

// BatchRunRecorder keeps the audit trail of finished sweeps
type BatchRunRecorder interface {
	Create(ctx context.Context, run *entities.BatchRun) error
}

// NewBatchReconciler creates a new batch reconciler
func NewBatchReconciler(uowFactory UnitOfWorkFactory, payouts PayoutRunner, location *time.Location, pageSize int) *BatchReconciler {
	if location == nil {
		location = time.UTC
	}
	if pageSize <= 0 {
		pageSize = defaultBatchPageSize
	}
	return &BatchReconciler{
		uowFactory: uowFactory,
		payouts:    payouts,
		location:   location,
		pageSize:   pageSize,
		now:        time.Now,
	}
}

// WithRunRecorder records every finished sweep through runs
func (b *BatchReconciler) WithRunRecorder(runs BatchRunRecorder) *BatchReconciler {
	b.runs = runs
	return b
}

// WithClock replaces the reconciler's time source
func (b *BatchReconciler) WithClock(now func() time.Time) *BatchReconciler {
	b.now = now
	return b
}

// RunPreviousPeriod sweeps the period that ended most recently before now
func (b *BatchReconciler) RunPreviousPeriod(ctx context.Context, now time.Time) (*BatchRunSummary, error) {
	return b.run(ctx, entities.PreviousPeriod(now, b.location), now)
}

// Run sweeps period. Payments are streamed in (creator, payment) order so only
// one creator's payments are held at a time. Each creator group commits on its
// own; a failing group is logged and counted without stopping the sweep.
// A period that has not ended yet is rejected with ErrPeriodNotElapsed.
func (b *BatchReconciler) Run(ctx context.Context, period string) (*BatchRunSummary, error) {
	return b.run(ctx, period, b.now())
}

func (b *BatchReconciler) run(ctx context.Context, period string, now time.Time) (*BatchRunSummary, error) {
	from, to, err := entities.PeriodBounds(period, b.location)
	if err != nil {
		return nil, err
	}
	if to.After(now) {
		return nil, fmt.Errorf("%w: %s ends at %s", entities.ErrPeriodNotElapsed, period, to.Format(time.RFC3339))
	}

	started := time.Now()
	summary := &BatchRunSummary{Period: period}

	log.WithFields(log.Fields{
		"period":    period,
		"from":      from,
		"to":        to,
		"page_size": b.pageSize,
	}).Info("Starting settlement batch run")

	var (
		cursor  entities.PaymentCursor
		group   []*entities.PaymentRecord
		creator int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		page, err := b.readPage(ctx, from, to, cursor)
		if err != nil {
			return summary, err
		}

		for _, payment := range page {
			if len(group) > 0 && payment.CreatorID != creator {
				b.settleGroup(ctx, period, creator, group, summary)
				group = nil
			}
			creator = payment.CreatorID
			group = append(group, payment)
		}

		if len(page) < b.pageSize {
			break
		}
		last := page[len(page)-1]
		cursor = entities.PaymentCursor{CreatorID: last.CreatorID, PaymentID: last.PaymentID}
	}

	if len(group) > 0 {
		b.settleGroup(ctx, period, creator, group, summary)
	}

	dropped, err := b.countUnattributed(ctx, from, to)
	if err != nil {
		log.WithError(err).Warn("Failed to count unattributable payments")
	}
	summary.PaymentsDropped = dropped

	summary.Duration = time.Since(started)
	observability.GetMetrics().RecordBatchRun(summary.Duration)

	log.WithFields(log.Fields{
		"period":              period,
		"groups_seen":         summary.GroupsSeen,
		"settlements_created": summary.SettlementsCreated,
		"skipped_existing":    summary.SkippedExisting,
		"groups_failed":       summary.GroupsFailed,
		"payments_settled":    summary.PaymentsSettled,
		"payments_dropped":    summary.PaymentsDropped,
		"payouts_succeeded":   summary.PayoutsSucceeded,
		"payouts_failed":      summary.PayoutsFailed,
		"duration":            summary.Duration,
	}).Info("Settlement batch run completed")

	b.record(ctx, started, summary)

	return summary, nil
}

// record writes the audit row. The sweep's own work is already committed, so a failure is only logged.
func (b *BatchReconciler) record(ctx context.Context, started time.Time, summary *BatchRunSummary) {
	if b.runs == nil {
		return
	}

	run := &entities.BatchRun{
		Period:             summary.Period,
		SettlementsCreated: summary.SettlementsCreated,
		PaymentsSettled:    summary.PaymentsSettled,
		PaymentsDropped:    summary.PaymentsDropped,
		PayoutsSucceeded:   summary.PayoutsSucceeded,
		PayoutsFailed:      summary.PayoutsFailed,
		ExecutionSummary: map[string]interface{}{
			"groups_seen":      summary.GroupsSeen,
			"skipped_existing": summary.SkippedExisting,
			"groups_failed":    summary.GroupsFailed,
			"page_size":        b.pageSize,
			"duration_ms":      summary.Duration.Milliseconds(),
		},
		StartedAt: started,
	}
	if err := b.runs.Create(ctx, run); err != nil {
		log.WithError(err).WithField("period", summary.Period).Warn("Failed to record batch run")
	}
}

func (b *BatchReconciler) readPage(ctx context.Context, from, to time.Time, cursor entities.PaymentCursor) ([]*entities.PaymentRecord, error) {
	uow := b.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	page, err := uow.PaymentRepository().ListConfirmedBetween(ctx, from, to, cursor, b.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed payments: %w", err)
	}
	return page, nil
}

func (b *BatchReconciler) countUnattributed(ctx context.Context, from, to time.Time) (int64, error) {
	uow := b.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.PaymentRepository().CountUnattributedBetween(ctx, from, to)
}

// settleGroup creates and pays out one creator's settlement. Errors stay inside the group.
func (b *BatchReconciler) settleGroup(ctx context.Context, period string, creatorID int64, payments []*entities.PaymentRecord, summary *BatchRunSummary) {
	summary.GroupsSeen++

	fields := log.Fields{
		"period":     period,
		"creator_id": creatorID,
		"payments":   len(payments),
	}

	settlementID, outcome, err := b.createSettlement(ctx, period, creatorID, payments)
	if err != nil {
		summary.GroupsFailed++
		log.WithFields(fields).WithError(err).Error("Failed to settle creator group")
		observability.GetMetrics().RecordBatchGroup(observability.OutcomeFailed)
		return
	}
	observability.GetMetrics().RecordBatchGroup(outcome)

	switch outcome {
	case observability.OutcomeCreated:
		summary.SettlementsCreated++
		summary.PaymentsSettled += len(payments)
	case observability.OutcomeSkipped:
		summary.SkippedExisting++
		log.WithFields(fields).Debug("Settlement already exists, leaving amounts untouched")
	}

	if settlementID == 0 {
		return
	}

	result, err := b.payouts.Execute(ctx, settlementID)
	if err != nil {
		summary.PayoutsFailed++
		fields["settlement_id"] = settlementID
		log.WithFields(fields).WithError(err).Error("Failed to execute payout")
		return
	}
	if result.Succeeded() {
		summary.PayoutsSucceeded++
	} else {
		summary.PayoutsFailed++
	}
}

// createSettlement returns the ID of a settlement that is ready for payout, or
// zero when there is nothing to pay. A settlement that already exists is never
// re-summed; if it is still READY it is handed on for payout as it stands.
func (b *BatchReconciler) createSettlement(ctx context.Context, period string, creatorID int64, payments []*entities.PaymentRecord) (int64, string, error) {
	uow := b.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	ledger := NewLedgerForUnitOfWork(uow)

	existing, err := ledger.FindOrNone(ctx, creatorID, period)
	if err != nil {
		return 0, "", err
	}
	if existing != nil {
		return readyID(existing), observability.OutcomeSkipped, nil
	}

	var total int64
	for _, p := range payments {
		total += p.Amount
	}

	settlement, err := ledger.Create(ctx, creatorID, period, total)
	if errors.Is(err, entities.ErrDuplicateSettlement) {
		// The incremental path created it between our read and insert
		return b.lookupReady(ctx, creatorID, period)
	}
	if err != nil {
		return 0, "", err
	}

	for _, p := range payments {
		if _, err := ledger.RecordDetailIfAbsent(ctx, settlement, p.PaymentID, p.Amount); err != nil {
			return 0, "", err
		}
	}

	if err := uow.EventBus().Publish(events.SettlementUpdatedEvent{
		SettlementID:      settlement.ID,
		CreatorID:         creatorID,
		Period:            period,
		TotalSalesAmount:  settlement.TotalSalesAmount,
		PlatformFeeAmount: settlement.PlatformFeeAmount,
		PayoutAmount:      settlement.PayoutAmount,
		Source:            observability.SourceBatch,
	}); err != nil {
		return 0, "", fmt.Errorf("failed to publish settlement update: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return 0, "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"settlement_id": settlement.ID,
		"creator_id":    creatorID,
		"period":        period,
		"total":         settlement.TotalSalesAmount,
		"payments":      len(payments),
	}).Info("Created settlement from batch")

	return settlement.ID, observability.OutcomeCreated, nil
}

func (b *BatchReconciler) lookupReady(ctx context.Context, creatorID int64, period string) (int64, string, error) {
	uow := b.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	existing, err := NewLedgerForUnitOfWork(uow).FindOrNone(ctx, creatorID, period)
	if err != nil {
		return 0, "", err
	}
	if existing == nil {
		return 0, "", fmt.Errorf("settlement for creator %d period %s missing after duplicate insert", creatorID, period)
	}
	return readyID(existing), observability.OutcomeSkipped, nil
}

// readyID returns the ID of a settlement the sweep should pay out. Its amounts
// are never touched, but a READY settlement from the incremental path is still
// paid here, since nothing else moves READY to COMPLETED once its period has
// ended. FAILED settlements belong to the retry scheduler and COMPLETED ones
// are done.
func readyID(s *entities.Settlement) int64 {
	if s.Status == entities.SettlementStatusReady {
		return s.ID
	}
	return 0
}
