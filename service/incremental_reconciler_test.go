package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfirmation(amount int64) entities.PaymentConfirmation {
	return entities.PaymentConfirmation{
		PaymentID:  TestPaymentID,
		OrderID:    TestOrderID,
		Amount:     amount,
		ApprovedAt: TestApprovedAt,
	}
}

func TestIncrementalReconciler_FirstPaymentCreatesSettlement(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*entities.Settlement).ID = TestSettlementID
	}).Return(nil)
	mocks.Details.On("CreateIfAbsent", ctx, mock.MatchedBy(func(d *entities.SettlementDetail) bool {
		return d.SettlementID == TestSettlementID && d.PaymentID == TestPaymentID && d.Amount == 5000
	})).Return(true, nil)
	mocks.Settlements.On("UpdateAmounts", ctx, mock.MatchedBy(func(s *entities.Settlement) bool {
		return s.TotalSalesAmount == 5000 && s.PlatformFeeAmount == 500 && s.PayoutAmount == 4500
	})).Return(nil)
	mocks.Events.On("Publish", mock.MatchedBy(func(e events.SettlementUpdatedEvent) bool {
		return e.SettlementID == TestSettlementID && e.TotalSalesAmount == 5000 && e.Source == "incremental"
	})).Return(nil)

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	result, err := reconciler.Reconcile(ctx, testConfirmation(5000))

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeApplied, result.Outcome)
	assert.True(t, result.Created)
	assert.Equal(t, TestPeriod, result.Period)
	assert.Equal(t, int64(5000), result.TotalSalesAmount)
	mocks.AssertAllExpectations(t)
}

func TestIncrementalReconciler_SecondPaymentAddsToExisting(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 5000)

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("Create", ctx, mock.Anything).Return(entities.ErrDuplicateSettlement)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)
	mocks.Details.On("CreateIfAbsent", ctx, mock.Anything).Return(true, nil)
	mocks.Settlements.On("UpdateAmounts", ctx, existing).Return(nil)
	mocks.Events.On("Publish", mock.Anything).Return(nil)

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	result, err := reconciler.Reconcile(ctx, testConfirmation(3000))

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeApplied, result.Outcome)
	assert.False(t, result.Created)
	assert.Equal(t, int64(8000), existing.TotalSalesAmount)
	assert.Equal(t, int64(800), existing.PlatformFeeAmount)
	assert.Equal(t, int64(7200), existing.PayoutAmount)
	assert.Equal(t, entities.SettlementStatusReady, existing.Status)
}

func TestIncrementalReconciler_ReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 5000)

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("Create", ctx, mock.Anything).Return(entities.ErrDuplicateSettlement)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)
	mocks.Details.On("CreateIfAbsent", ctx, mock.Anything).Return(false, nil)

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	result, err := reconciler.Reconcile(ctx, testConfirmation(5000))

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeAlreadyApplied, result.Outcome)
	assert.Equal(t, int64(5000), existing.TotalSalesAmount)
	mocks.Settlements.AssertNotCalled(t, "UpdateAmounts", mock.Anything, mock.Anything)
	mocks.Events.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestIncrementalReconciler_UnattributableIsSkipped(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(0), entities.ErrUnattributableCreator)

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	result, err := reconciler.Reconcile(ctx, testConfirmation(5000))

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeSkipped, result.Outcome)
	mocks.Settlements.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mocks.UoW.AssertNotCalled(t, "Commit")
}

func TestIncrementalReconciler_CompletedSettlementIsClosed(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 8000)
	require.NoError(t, existing.MarkCompleted(time.Now()))

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("Create", ctx, mock.Anything).Return(entities.ErrDuplicateSettlement)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	_, err := reconciler.Reconcile(ctx, testConfirmation(1000))

	assert.ErrorIs(t, err, entities.ErrSettlementClosed)
	assert.Equal(t, int64(8000), existing.TotalSalesAmount)
	mocks.Details.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
	mocks.UoW.AssertNotCalled(t, "Commit")
}

func TestIncrementalReconciler_PeriodFollowsLocation(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	seoul := time.FixedZone("KST", 9*60*60)

	// 2024-05-31 20:00 UTC is already June in UTC+9
	payment := testConfirmation(1000)
	payment.ApprovedAt = time.Date(2024, time.May, 31, 20, 0, 0, 0, time.UTC)

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("Create", ctx, mock.MatchedBy(func(s *entities.Settlement) bool {
		return s.Period == "2024-06"
	})).Return(nil)
	mocks.Details.On("CreateIfAbsent", ctx, mock.Anything).Return(true, nil)
	mocks.Settlements.On("UpdateAmounts", ctx, mock.Anything).Return(nil)
	mocks.Events.On("Publish", mock.Anything).Return(nil)

	result, err := NewIncrementalReconciler(mocks.Factory, seoul).Reconcile(ctx, payment)

	require.NoError(t, err)
	assert.Equal(t, "2024-06", result.Period)
}

func TestIncrementalReconciler_NegativeAmountRejected(t *testing.T) {
	mocks := NewTestMocks()

	_, err := NewIncrementalReconciler(mocks.Factory, time.UTC).Reconcile(context.Background(), testConfirmation(-5))

	assert.ErrorIs(t, err, entities.ErrInvalidAmount)
	mocks.UoW.AssertNotCalled(t, "Begin", mock.Anything)
}

func TestIncrementalReconciler_HandlePaymentConfirmedSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(0), errors.New("catalog unavailable"))

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	assert.NotPanics(t, func() {
		reconciler.HandlePaymentConfirmed(ctx, testConfirmation(5000))
	})
}

func TestIncrementalReconciler_HandlePaymentConfirmedRecoversPanics(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Run(func(mock.Arguments) {
		panic("driver bug")
	}).Return(int64(0), nil)

	reconciler := NewIncrementalReconciler(mocks.Factory, time.UTC)
	assert.NotPanics(t, func() {
		reconciler.HandlePaymentConfirmed(ctx, testConfirmation(5000))
	})
}

func testCancellation() entities.PaymentCancellation {
	return entities.PaymentCancellation{
		PaymentID:   TestPaymentID,
		OrderID:     TestOrderID,
		Amount:      3000,
		ApprovedAt:  TestApprovedAt,
		CancelledAt: TestApprovedAt.Add(48 * time.Hour),
	}
}

func TestIncrementalReconciler_CancellationSubtractsDetailAmount(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 8000)
	detail := &entities.SettlementDetail{SettlementID: TestSettlementID, PaymentID: TestPaymentID, Amount: 3000}

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)
	mocks.Details.On("GetBySettlementAndPayment", ctx, int64(TestSettlementID), int64(TestPaymentID)).Return(detail, nil)
	mocks.Reversals.On("CreateIfAbsent", ctx, mock.MatchedBy(func(r *entities.SettlementReversal) bool {
		return r.PaymentID == TestPaymentID && r.Amount == 3000
	})).Return(true, nil)
	mocks.Settlements.On("UpdateAmounts", ctx, existing).Return(nil)
	mocks.Events.On("Publish", mock.MatchedBy(func(e events.SettlementUpdatedEvent) bool {
		return e.Source == "cancellation" && e.TotalSalesAmount == 5000
	})).Return(nil)

	cancellation := testCancellation()
	cancellation.Amount = 99999 // ignored; the recorded detail is authoritative

	result, err := NewIncrementalReconciler(mocks.Factory, time.UTC).ReconcileCancellation(ctx, cancellation)

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeApplied, result.Outcome)
	assert.Equal(t, int64(5000), existing.TotalSalesAmount)
	assert.Equal(t, int64(500), existing.PlatformFeeAmount)
	assert.Equal(t, int64(4500), existing.PayoutAmount)
	mocks.AssertAllExpectations(t)
}

func TestIncrementalReconciler_CancellationReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 5000)
	detail := &entities.SettlementDetail{SettlementID: TestSettlementID, PaymentID: TestPaymentID, Amount: 3000}

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)
	mocks.Details.On("GetBySettlementAndPayment", ctx, int64(TestSettlementID), int64(TestPaymentID)).Return(detail, nil)
	mocks.Reversals.On("CreateIfAbsent", ctx, mock.Anything).Return(false, nil)

	result, err := NewIncrementalReconciler(mocks.Factory, time.UTC).ReconcileCancellation(ctx, testCancellation())

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeAlreadyApplied, result.Outcome)
	assert.Equal(t, int64(5000), existing.TotalSalesAmount)
	mocks.Settlements.AssertNotCalled(t, "UpdateAmounts", mock.Anything, mock.Anything)
}

func TestIncrementalReconciler_CancellationWithoutDetailIsNotSettled(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 5000)

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)
	mocks.Details.On("GetBySettlementAndPayment", ctx, int64(TestSettlementID), int64(TestPaymentID)).Return(nil, nil)

	result, err := NewIncrementalReconciler(mocks.Factory, time.UTC).ReconcileCancellation(ctx, testCancellation())

	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeNotSettled, result.Outcome)
	mocks.Reversals.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
}

func TestIncrementalReconciler_CancellationAfterPayoutIsClosed(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	existing := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 8000)
	require.NoError(t, existing.MarkCompleted(time.Now()))
	detail := &entities.SettlementDetail{SettlementID: TestSettlementID, PaymentID: TestPaymentID, Amount: 3000}

	mocks.Creators.On("ResolveCreatorID", ctx, int64(TestOrderID)).Return(int64(TestCreatorID), nil)
	mocks.Settlements.On("GetByCreatorAndPeriodForUpdate", ctx, int64(TestCreatorID), TestPeriod).Return(existing, nil)
	mocks.Details.On("GetBySettlementAndPayment", ctx, int64(TestSettlementID), int64(TestPaymentID)).Return(detail, nil)

	_, err := NewIncrementalReconciler(mocks.Factory, time.UTC).ReconcileCancellation(ctx, testCancellation())

	assert.ErrorIs(t, err, entities.ErrSettlementClosed)
	assert.Equal(t, int64(8000), existing.TotalSalesAmount)
}
