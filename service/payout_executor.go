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

// RetryMode says who asked for a payout retry
type RetryMode string

const (
	// RetryModeScheduled retries honour the cool-down window
	RetryModeScheduled RetryMode = "scheduled"
	// RetryModeManual retries are operator-triggered and skip the cool-down
	RetryModeManual RetryMode = "manual"

	payoutModeInitial = "initial"
)

// PayoutPolicy bounds payout attempts
type PayoutPolicy struct {
	MaxRetries int
	Cooldown   time.Duration
	Timeout    time.Duration
}

// DefaultPayoutPolicy matches the configuration defaults
func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		MaxRetries: 3,
		Cooldown:   time.Hour,
		Timeout:    10 * time.Second,
	}
}

// PayoutOutcome is the settlement state after a payout attempt. A failed
// attempt is reported here rather than as an error.
type PayoutOutcome struct {
	SettlementID int64
	CreatorID    int64
	Period       string
	Status       entities.SettlementStatus
	PayoutAmount int64
	RetryCount   int
	Reference    string
	Reason       string
	Exhausted    bool
}

// Succeeded reports whether the attempt completed the settlement
func (o *PayoutOutcome) Succeeded() bool {
	return o.Status == entities.SettlementStatusCompleted
}

// PayoutRunner is what the batch reconciler and retry scheduler need from the executor
type PayoutRunner interface {
	Execute(ctx context.Context, settlementID int64) (*PayoutOutcome, error)
	Retry(ctx context.Context, settlementID int64, mode RetryMode) (*PayoutOutcome, error)
}

// PayoutExecutor moves settlements from READY or FAILED to COMPLETED or FAILED
// by calling the payout rail while holding the settlement row lock.
type PayoutExecutor struct {
	uowFactory UnitOfWorkFactory
	rail       PayoutRail
	policy     PayoutPolicy
	now        func() time.Time
}

// NewPayoutExecutor creates a new payout executor
func NewPayoutExecutor(uowFactory UnitOfWorkFactory, rail PayoutRail, policy PayoutPolicy) *PayoutExecutor {
	return &PayoutExecutor{
		uowFactory: uowFactory,
		rail:       rail,
		policy:     policy,
		now:        time.Now,
	}
}

// WithClock replaces the executor's time source
func (e *PayoutExecutor) WithClock(now func() time.Time) *PayoutExecutor {
	e.now = now
	return e
}

// Policy returns the limits the executor enforces
func (e *PayoutExecutor) Policy() PayoutPolicy {
	return e.policy
}

// Execute attempts the payout for a READY settlement. FAILED settlements with
// retries remaining are also accepted so an interrupted batch can resume.
func (e *PayoutExecutor) Execute(ctx context.Context, settlementID int64) (*PayoutOutcome, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settlement, err := e.lockSettlement(ctx, uow, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.IsRetryExhausted(e.policy.MaxRetries) {
		return nil, fmt.Errorf("%w: settlement %d has %d failed attempts", entities.ErrRetryCeilingExceeded, settlement.ID, settlement.RetryCount)
	}

	return e.payOut(ctx, uow, settlement, payoutModeInitial)
}

// Retry re-attempts a FAILED settlement. Scheduled retries must wait out the
// cool-down; manual retries only respect the retry ceiling.
func (e *PayoutExecutor) Retry(ctx context.Context, settlementID int64, mode RetryMode) (*PayoutOutcome, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settlement, err := e.lockSettlement(ctx, uow, settlementID)
	if err != nil {
		return nil, err
	}

	if settlement.Status != entities.SettlementStatusFailed {
		return nil, fmt.Errorf("%w: settlement %d is %s, only FAILED settlements can be retried",
			entities.ErrInvalidTransition, settlement.ID, settlement.Status)
	}
	if settlement.IsRetryExhausted(e.policy.MaxRetries) {
		return nil, fmt.Errorf("%w: settlement %d has %d failed attempts", entities.ErrRetryCeilingExceeded, settlement.ID, settlement.RetryCount)
	}
	// Re-checked under the lock; the candidate list may be stale
	if mode == RetryModeScheduled && !settlement.IsRetryDue(e.now(), e.policy.Cooldown) {
		return nil, fmt.Errorf("%w: settlement %d last failed at %s", entities.ErrCooldownActive, settlement.ID, settlement.LastRetryAt.Format(time.RFC3339))
	}

	if err := settlement.MarkReadyForRetry(); err != nil {
		return nil, err
	}

	return e.payOut(ctx, uow, settlement, string(mode))
}

func (e *PayoutExecutor) lockSettlement(ctx context.Context, uow UnitOfWork, settlementID int64) (*entities.Settlement, error) {
	settlement, err := uow.SettlementRepository().GetByIDForUpdate(ctx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock settlement: %w", err)
	}
	if settlement == nil {
		return nil, fmt.Errorf("%w: %d", entities.ErrSettlementNotFound, settlementID)
	}
	if settlement.IsCompleted() {
		return nil, fmt.Errorf("%w: settlement %d", entities.ErrAlreadyCompleted, settlement.ID)
	}
	return settlement, nil
}

func (e *PayoutExecutor) payOut(ctx context.Context, uow UnitOfWork, settlement *entities.Settlement, mode string) (*PayoutOutcome, error) {
	result, attemptErr := e.attempt(ctx, settlement)
	now := e.now()

	outcome := &PayoutOutcome{
		SettlementID: settlement.ID,
		CreatorID:    settlement.CreatorID,
		Period:       settlement.Period,
		PayoutAmount: settlement.PayoutAmount,
	}

	var event events.Event
	if attemptErr == nil {
		if err := settlement.MarkCompleted(now); err != nil {
			return nil, err
		}
		outcome.Reference = result.Reference
		event = events.SettlementPaidEvent{
			SettlementID: settlement.ID,
			CreatorID:    settlement.CreatorID,
			Period:       settlement.Period,
			PayoutAmount: settlement.PayoutAmount,
			RetryCount:   settlement.RetryCount,
			SettledAt:    now,
		}
	} else {
		if err := settlement.MarkFailed(now); err != nil {
			return nil, err
		}
		outcome.Reason = attemptErr.Error()
		outcome.Exhausted = settlement.IsRetryExhausted(e.policy.MaxRetries)
		event = events.SettlementPayoutFailedEvent{
			SettlementID: settlement.ID,
			CreatorID:    settlement.CreatorID,
			Period:       settlement.Period,
			PayoutAmount: settlement.PayoutAmount,
			RetryCount:   settlement.RetryCount,
			Exhausted:    outcome.Exhausted,
			Reason:       outcome.Reason,
			FailedAt:     now,
		}
	}

	if err := uow.SettlementRepository().UpdatePayoutState(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to persist payout state: %w", err)
	}
	if err := uow.EventBus().Publish(event); err != nil {
		return nil, fmt.Errorf("failed to publish payout event: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	outcome.Status = settlement.Status
	outcome.RetryCount = settlement.RetryCount

	fields := log.Fields{
		"settlement_id": settlement.ID,
		"creator_id":    settlement.CreatorID,
		"period":        settlement.Period,
		"payout_amount": settlement.PayoutAmount,
		"retry_count":   settlement.RetryCount,
		"mode":          mode,
	}
	if outcome.Succeeded() {
		log.WithFields(fields).Info("Payout completed")
		observability.GetMetrics().RecordPayoutAttempt(mode, observability.OutcomeSucceeded, settlement.PayoutAmount)
	} else {
		fields["reason"] = outcome.Reason
		fields["exhausted"] = outcome.Exhausted
		log.WithFields(fields).Warn("Payout failed")
		observability.GetMetrics().RecordPayoutAttempt(mode, observability.OutcomeFailed, settlement.PayoutAmount)
	}

	return outcome, nil
}

// attempt calls the rail once. Errors, timeouts, panics and unsuccessful
// results all come back as an ErrPayoutFailure.
func (e *PayoutExecutor) attempt(ctx context.Context, settlement *entities.Settlement) (result *PayoutResult, err error) {
	attemptCtx := ctx
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%w: payout rail panicked: %v", entities.ErrPayoutFailure, rec)
		}
	}()

	result, err = e.rail.AttemptPayout(attemptCtx, settlement.CreatorID, settlement.PayoutAmount)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded)):
		return nil, fmt.Errorf("%w: payout rail timed out after %s", entities.ErrPayoutFailure, e.policy.Timeout)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", entities.ErrPayoutFailure, err)
	case result == nil:
		return nil, fmt.Errorf("%w: payout rail returned no result", entities.ErrPayoutFailure)
	case !result.Success:
		reason := result.Reason
		if reason == "" {
			reason = "rejected by payout rail"
		}
		return nil, fmt.Errorf("%w: %s", entities.ErrPayoutFailure, reason)
	}
	return result, nil
}
