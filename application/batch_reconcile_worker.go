package application

import (
	"context"
	"fmt"
	"time"

	"creatorpay/service"

	log "github.com/sirupsen/logrus"
)

const (
	batchJobName    = "batch-reconcile"
	batchJobLockTTL = 2 * time.Hour
)

// BatchReconcileWorker sweeps the previous period once a month
type BatchReconcileWorker struct {
	batch   BatchRunner
	lock    JobLock
	runDay  int
	runHour int
	now     func() time.Time
}

// NewBatchReconcileWorker creates a worker that fires on runDay at runHour:00 UTC
func NewBatchReconcileWorker(batch BatchRunner, lock JobLock, runDay, runHour int) *BatchReconcileWorker {
	return &BatchReconcileWorker{
		batch:   batch,
		lock:    lock,
		runDay:  runDay,
		runHour: runHour,
		now:     time.Now,
	}
}

// NextRun returns the first scheduled run strictly after t
func (w *BatchReconcileWorker) NextRun(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), w.runDay, w.runHour, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month()+1, w.runDay, w.runHour, 0, 0, 0, time.UTC)
	}
	return next
}

// Start begins the worker. The returned function stops it.
func (w *BatchReconcileWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.Info("Batch reconcile worker started")

		for {
			nextRun := w.NextRun(w.now())
			waitDuration := nextRun.Sub(w.now())
			log.Infof("Next batch reconciliation at %v (in %v)", nextRun, waitDuration)

			select {
			case <-ctx.Done():
				log.Info("Batch reconcile worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Batch reconcile worker shutting down (stop requested)...")
				return
			case <-time.After(waitDuration):
			}

			if _, err := w.RunOnce(ctx); err != nil {
				log.Errorf("Batch reconciliation failed: %v", err)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// RunOnce sweeps the previous period if no other replica holds the job lock.
// Returns nil, nil when the lock is taken elsewhere.
func (w *BatchReconcileWorker) RunOnce(ctx context.Context) (*service.BatchRunSummary, error) {
	release, acquired, err := w.lock.TryAcquire(ctx, batchJobName, batchJobLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire batch job lock: %w", err)
	}
	if !acquired {
		log.Info("Batch reconciliation already running on another instance, skipping")
		return nil, nil
	}
	defer release()

	summary, err := w.batch.RunPreviousPeriod(ctx, w.now())
	if err != nil {
		return nil, fmt.Errorf("failed to run batch reconciliation: %w", err)
	}

	log.WithFields(log.Fields{
		"period":              summary.Period,
		"groups":              summary.GroupsSeen,
		"settlements_created": summary.SettlementsCreated,
		"skipped_existing":    summary.SkippedExisting,
		"groups_failed":       summary.GroupsFailed,
		"payments_dropped":    summary.PaymentsDropped,
		"payouts_succeeded":   summary.PayoutsSucceeded,
		"payouts_failed":      summary.PayoutsFailed,
		"duration":            summary.Duration,
	}).Info("Completed batch reconciliation")

	return summary, nil
}
