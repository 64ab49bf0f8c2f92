package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

const defaultRetryBatchLimit = 100

// RetryRunSummary reports one pass of the retry scheduler
type RetryRunSummary struct {
	Candidates int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     int
}

// RetryScheduler re-attempts FAILED payouts whose cool-down has elapsed
type RetryScheduler struct {
	uowFactory UnitOfWorkFactory
	payouts    PayoutRunner
	policy     PayoutPolicy
	limit      int
	now        func() time.Time
}

// NewRetryScheduler creates a new retry scheduler
func NewRetryScheduler(uowFactory UnitOfWorkFactory, payouts PayoutRunner, policy PayoutPolicy) *RetryScheduler {
	return &RetryScheduler{
		uowFactory: uowFactory,
		payouts:    payouts,
		policy:     policy,
		limit:      defaultRetryBatchLimit,
		now:        time.Now,
	}
}

// WithClock replaces the scheduler's time source
func (s *RetryScheduler) WithClock(now func() time.Time) *RetryScheduler {
	s.now = now
	return s
}

// RunOnce retries every due candidate once. A failing candidate does not stop the pass.
func (s *RetryScheduler) RunOnce(ctx context.Context) (*RetryRunSummary, error) {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	summary := &RetryRunSummary{Candidates: len(candidates)}
	observability.GetMetrics().RecordRetryRun()

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome, err := s.payouts.Retry(ctx, id, RetryModeScheduled)
		if err != nil {
			// Another replica or an operator may have moved the settlement since it was selected
			if isRetryRaceError(err) {
				summary.Skipped++
				log.WithFields(log.Fields{
					"settlement_id": id,
					"reason":        err.Error(),
				}).Debug("Skipping payout retry")
				continue
			}
			summary.Errors++
			log.WithFields(log.Fields{
				"settlement_id": id,
				"error":         err,
			}).Error("Payout retry failed")
			continue
		}

		if outcome.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	if summary.Candidates > 0 {
		log.WithFields(log.Fields{
			"candidates": summary.Candidates,
			"succeeded":  summary.Succeeded,
			"failed":     summary.Failed,
			"skipped":    summary.Skipped,
			"errors":     summary.Errors,
		}).Info("Payout retry run completed")
	}

	return summary, nil
}

func (s *RetryScheduler) candidates(ctx context.Context) ([]int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	cutoff := s.now().Add(-s.policy.Cooldown)
	settlements, err := uow.SettlementRepository().GetRetryCandidates(ctx, s.policy.MaxRetries, cutoff, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get retry candidates: %w", err)
	}

	ids := make([]int64, 0, len(settlements))
	for _, settlement := range settlements {
		ids = append(ids, settlement.ID)
	}
	return ids, nil
}

func isRetryRaceError(err error) bool {
	return errors.Is(err, entities.ErrCooldownActive) ||
		errors.Is(err, entities.ErrAlreadyCompleted) ||
		errors.Is(err, entities.ErrInvalidTransition) ||
		errors.Is(err, entities.ErrRetryCeilingExceeded)
}
