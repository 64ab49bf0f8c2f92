package application

import (
	"context"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/service"

	"github.com/stretchr/testify/mock"
)

type mockPaymentReconciler struct {
	mock.Mock
}

func (m *mockPaymentReconciler) Reconcile(ctx context.Context, payment entities.PaymentConfirmation) (*service.ReconcileResult, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconcileResult), args.Error(1)
}

func (m *mockPaymentReconciler) ReconcileCancellation(ctx context.Context, cancellation entities.PaymentCancellation) (*service.ReconcileResult, error) {
	args := m.Called(ctx, cancellation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconcileResult), args.Error(1)
}

type mockBestEffortReconciler struct {
	mock.Mock
}

func (m *mockBestEffortReconciler) HandlePaymentConfirmed(ctx context.Context, payment entities.PaymentConfirmation) {
	m.Called(ctx, payment)
}

type mockBatchRunner struct {
	mock.Mock
}

func (m *mockBatchRunner) RunPreviousPeriod(ctx context.Context, now time.Time) (*service.BatchRunSummary, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchRunSummary), args.Error(1)
}

type mockRetryRunner struct {
	mock.Mock
}

func (m *mockRetryRunner) RunOnce(ctx context.Context) (*service.RetryRunSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RetryRunSummary), args.Error(1)
}

// fakeJobLock grants or refuses the lock and counts releases
type fakeJobLock struct {
	acquire  bool
	err      error
	released int
	names    []string
}

func (f *fakeJobLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return nil, false, f.err
	}
	if !f.acquire {
		return nil, false, nil
	}
	return func() { f.released++ }, true, nil
}
