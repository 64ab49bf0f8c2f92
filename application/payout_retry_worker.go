package application

import (
	"context"
	"fmt"
	"time"

	"creatorpay/service"

	log "github.com/sirupsen/logrus"
)

const retryJobName = "payout-retry"

// PayoutRetryWorker re-attempts due failed payouts on a fixed interval
type PayoutRetryWorker struct {
	retries  RetryRunner
	lock     JobLock
	interval time.Duration
}

// NewPayoutRetryWorker creates a new payout retry worker
func NewPayoutRetryWorker(retries RetryRunner, lock JobLock, interval time.Duration) *PayoutRetryWorker {
	return &PayoutRetryWorker{
		retries:  retries,
		lock:     lock,
		interval: interval,
	}
}

// Start begins the worker. The returned function stops it.
func (w *PayoutRetryWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	ticker := time.NewTicker(w.interval)

	go func() {
		defer ticker.Stop()
		log.Infof("Payout retry worker started (every %v)", w.interval)

		for {
			select {
			case <-ctx.Done():
				log.Info("Payout retry worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Payout retry worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil {
					log.Errorf("Payout retry sweep failed: %v", err)
				}
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// RunOnce runs one retry sweep under the job lock. Returns nil, nil when the
// lock is held elsewhere.
func (w *PayoutRetryWorker) RunOnce(ctx context.Context) (*service.RetryRunSummary, error) {
	// The lock outlives the sweep only if the process dies mid-run
	release, acquired, err := w.lock.TryAcquire(ctx, retryJobName, w.interval)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire retry job lock: %w", err)
	}
	if !acquired {
		log.Debug("Payout retry sweep running on another instance, skipping")
		return nil, nil
	}
	defer release()

	summary, err := w.retries.RunOnce(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run payout retry sweep: %w", err)
	}

	if summary.Candidates > 0 {
		log.WithFields(log.Fields{
			"candidates": summary.Candidates,
			"succeeded":  summary.Succeeded,
			"failed":     summary.Failed,
			"skipped":    summary.Skipped,
			"errors":     summary.Errors,
		}).Info("Completed payout retry sweep")
	}

	return summary, nil
}
