package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/infrastructure"
	"creatorpay/repository"
	"creatorpay/repository/testutil"
	"creatorpay/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSettlementFlow_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	uowFactory := infrastructure.NewUnitOfWorkFactory(testDB.DB, infrastructure.NewNoopEventPublisher())
	settlements := repository.NewSettlementRepository(testDB.DB)
	details := repository.NewSettlementDetailRepository(testDB.DB)
	reconciler := service.NewIncrementalReconciler(uowFactory, time.UTC)
	policy := service.PayoutPolicy{MaxRetries: 3, Cooldown: time.Hour, Timeout: 2 * time.Second}

	approvedAt := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	t.Run("content and subscription sales accumulate then pay out", func(t *testing.T) {
		catalog := testutil.CreateTestCatalog(t, testDB.DB, "Alice")
		contentPayment := testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, catalog.ContentID, 5000), 5000, approvedAt)
		subscriptionPayment := testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestSubscriptionOrder(t, testDB.DB, catalog.PlanID, 3000), 3000, approvedAt.Add(time.Hour))

		first, err := reconciler.Reconcile(ctx, *contentPayment)
		require.NoError(t, err)
		assert.True(t, first.Created)
		second, err := reconciler.Reconcile(ctx, *subscriptionPayment)
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.SettlementID, second.SettlementID)

		s, err := settlements.GetByCreatorAndPeriod(ctx, catalog.CreatorID, "2024-06")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, int64(8000), s.TotalSalesAmount)
		assert.Equal(t, int64(800), s.PlatformFeeAmount)
		assert.Equal(t, int64(7200), s.PayoutAmount)
		assert.Equal(t, entities.SettlementStatusReady, s.Status)

		applied, err := details.GetBySettlement(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, applied, 2)

		rail := new(service.MockPayoutRail)
		rail.On("AttemptPayout", mock.Anything, catalog.CreatorID, int64(7200)).
			Return(&service.PayoutResult{Success: true, Reference: "tx-alice"}, nil).Once()
		executor := service.NewPayoutExecutor(uowFactory, rail, policy)

		outcome, err := executor.Execute(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, outcome.Succeeded())
		assert.Equal(t, "tx-alice", outcome.Reference)

		paid, err := settlements.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusCompleted, paid.Status)
		assert.NotNil(t, paid.SettledAt)
		assert.Zero(t, paid.RetryCount)
		rail.AssertExpectations(t)

		// A late payment must not reopen a paid settlement
		late := testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, catalog.ContentID, 1000), 1000, approvedAt.Add(2*time.Hour))
		_, err = reconciler.Reconcile(ctx, *late)
		assert.ErrorIs(t, err, entities.ErrSettlementClosed)
	})

	t.Run("failed payout waits out the cool-down then succeeds on retry", func(t *testing.T) {
		catalog := testutil.CreateTestCatalog(t, testDB.DB, "Bob")
		payment := testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, catalog.ContentID, 2000), 2000, approvedAt)
		result, err := reconciler.Reconcile(ctx, *payment)
		require.NoError(t, err)

		failedAt := time.Date(2024, time.July, 1, 3, 0, 0, 0, time.UTC)
		rail := new(service.MockPayoutRail)
		rail.On("AttemptPayout", mock.Anything, catalog.CreatorID, int64(1800)).
			Return(&service.PayoutResult{Success: false, Reason: "bank unavailable"}, nil).Once()
		rail.On("AttemptPayout", mock.Anything, catalog.CreatorID, int64(1800)).
			Return(&service.PayoutResult{Success: true, Reference: "tx-bob"}, nil).Once()

		executor := service.NewPayoutExecutor(uowFactory, rail, policy).
			WithClock(func() time.Time { return failedAt })
		outcome, err := executor.Execute(ctx, result.SettlementID)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, outcome.Status)
		assert.Equal(t, 1, outcome.RetryCount)
		assert.False(t, outcome.Exhausted)

		// Scheduler run inside the cool-down leaves the settlement alone
		early := service.NewRetryScheduler(uowFactory, executor, policy).
			WithClock(func() time.Time { return failedAt.Add(10 * time.Minute) })
		summary, err := early.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Candidates)

		untouched, err := settlements.GetByID(ctx, result.SettlementID)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, untouched.Status)
		assert.Equal(t, 1, untouched.RetryCount)

		// A scheduled retry that races the cool-down is refused under the row lock
		racing := service.NewPayoutExecutor(uowFactory, rail, policy).
			WithClock(func() time.Time { return failedAt.Add(10 * time.Minute) })
		_, err = racing.Retry(ctx, result.SettlementID, service.RetryModeScheduled)
		assert.ErrorIs(t, err, entities.ErrCooldownActive)

		due := service.NewPayoutExecutor(uowFactory, rail, policy).
			WithClock(func() time.Time { return failedAt.Add(2 * time.Hour) })
		scheduler := service.NewRetryScheduler(uowFactory, due, policy).
			WithClock(func() time.Time { return failedAt.Add(2 * time.Hour) })
		summary, err = scheduler.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Candidates)
		assert.Equal(t, 1, summary.Succeeded)

		paid, err := settlements.GetByID(ctx, result.SettlementID)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusCompleted, paid.Status)
		assert.Equal(t, 1, paid.RetryCount)
		assert.NotNil(t, paid.SettledAt)
		rail.AssertExpectations(t)

		_, err = due.Retry(ctx, result.SettlementID, service.RetryModeManual)
		assert.ErrorIs(t, err, entities.ErrAlreadyCompleted)
	})

	t.Run("concurrent replays of one payment apply it once", func(t *testing.T) {
		catalog := testutil.CreateTestCatalog(t, testDB.DB, "Carol")
		payment := testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, catalog.ContentID, 4000), 4000, approvedAt)

		const replays = 8
		var wg sync.WaitGroup
		outcomes := make(chan service.ReconcileOutcome, replays)
		errs := make(chan error, replays)
		for i := 0; i < replays; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := reconciler.Reconcile(ctx, *payment)
				if err != nil {
					errs <- err
					return
				}
				outcomes <- result.Outcome
			}()
		}
		wg.Wait()
		close(outcomes)
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		applied, replayed := 0, 0
		for outcome := range outcomes {
			switch outcome {
			case service.ReconcileOutcomeApplied:
				applied++
			case service.ReconcileOutcomeAlreadyApplied:
				replayed++
			}
		}
		assert.Equal(t, 1, applied)
		assert.Equal(t, replays-1, replayed)

		s, err := settlements.GetByCreatorAndPeriod(ctx, catalog.CreatorID, "2024-06")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, int64(4000), s.TotalSalesAmount)

		recorded, err := details.GetBySettlement(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, recorded, 1)
	})

	t.Run("batch sweep settles what the incremental path missed", func(t *testing.T) {
		march := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

		dave := testutil.CreateTestCatalog(t, testDB.DB, "Dave")
		testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, dave.ContentID, 4000), 4000, march)
		testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestSubscriptionOrder(t, testDB.DB, dave.PlanID, 5000), 5000, march.Add(24*time.Hour))
		pendingOrder := testutil.CreateTestContentOrder(t, testDB.DB, dave.ContentID, 7000)
		testutil.CreateTestPaymentWithStatus(t, testDB.DB, pendingOrder, 7000, "PENDING", nil)

		// Erin's settlement already exists from the incremental path
		erin := testutil.CreateTestCatalog(t, testDB.DB, "Erin")
		erinPayment := testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, erin.ContentID, 1000), 1000, march)
		existing, err := reconciler.Reconcile(ctx, *erinPayment)
		require.NoError(t, err)

		orphan := testutil.CreateTestOrphanChannel(t, testDB.DB)
		testutil.CreateTestConfirmedPayment(t, testDB.DB,
			testutil.CreateTestContentOrder(t, testDB.DB, orphan.ContentID, 1000), 1000, march)

		rail := new(service.MockPayoutRail)
		rail.On("AttemptPayout", mock.Anything, dave.CreatorID, int64(8100)).
			Return(&service.PayoutResult{Success: true, Reference: "tx-dave"}, nil).Once()
		rail.On("AttemptPayout", mock.Anything, erin.CreatorID, int64(900)).
			Return(&service.PayoutResult{Success: true, Reference: "tx-erin"}, nil).Once()
		executor := service.NewPayoutExecutor(uowFactory, rail, policy)

		// A page size of one forces the keyset cursor across every row
		batchRuns := repository.NewBatchRunRepository(testDB.DB)
		batch := service.NewBatchReconciler(uowFactory, executor, time.UTC, 1).WithRunRecorder(batchRuns)
		summary, err := batch.Run(ctx, "2025-03")
		require.NoError(t, err)

		assert.Equal(t, 2, summary.GroupsSeen)
		assert.Equal(t, 1, summary.SettlementsCreated)
		assert.Equal(t, 1, summary.SkippedExisting)
		assert.Equal(t, 2, summary.PaymentsSettled)
		assert.Equal(t, int64(1), summary.PaymentsDropped)
		assert.Equal(t, 2, summary.PayoutsSucceeded)
		assert.Zero(t, summary.GroupsFailed)

		daveSettlement, err := settlements.GetByCreatorAndPeriod(ctx, dave.CreatorID, "2025-03")
		require.NoError(t, err)
		require.NotNil(t, daveSettlement)
		assert.Equal(t, int64(9000), daveSettlement.TotalSalesAmount)
		assert.Equal(t, entities.SettlementStatusCompleted, daveSettlement.Status)

		erinSettlement, err := settlements.GetByID(ctx, existing.SettlementID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), erinSettlement.TotalSalesAmount)
		assert.Equal(t, entities.SettlementStatusCompleted, erinSettlement.Status)
		rail.AssertExpectations(t)

		// A second sweep finds everything settled and pays nothing
		again, err := batch.Run(ctx, "2025-03")
		require.NoError(t, err)
		assert.Zero(t, again.SettlementsCreated)
		assert.Equal(t, 2, again.SkippedExisting)
		assert.Zero(t, again.PayoutsSucceeded)
		rail.AssertNumberOfCalls(t, "AttemptPayout", 2)

		recorded, err := batchRuns.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recorded, 2)
		assert.Zero(t, recorded[0].SettlementsCreated)
		assert.Equal(t, 1, recorded[1].SettlementsCreated)
		assert.Equal(t, int64(1), recorded[1].PaymentsDropped)
	})
}
