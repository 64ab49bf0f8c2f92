package service

import (
	"context"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/events"

	"github.com/stretchr/testify/mock"
)

// MockSettlementRepository is a mock implementation of SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) GetByID(ctx context.Context, id int64) (*entities.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetByCreatorAndPeriod(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error) {
	args := m.Called(ctx, creatorID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetByCreatorAndPeriodForUpdate(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error) {
	args := m.Called(ctx, creatorID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) Create(ctx context.Context, settlement *entities.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) UpdateAmounts(ctx context.Context, settlement *entities.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) UpdatePayoutState(ctx context.Context, settlement *entities.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) ListByCreator(ctx context.Context, creatorID int64) ([]*entities.Settlement, error) {
	args := m.Called(ctx, creatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) Search(ctx context.Context, filter entities.SettlementFilter) ([]*entities.SettlementSummary, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*entities.SettlementSummary), args.Get(1).(int64), args.Error(2)
}

func (m *MockSettlementRepository) GetRetryCandidates(ctx context.Context, maxRetries int, lastRetryBefore time.Time, limit int) ([]*entities.Settlement, error) {
	args := m.Called(ctx, maxRetries, lastRetryBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetStats(ctx context.Context, currentPeriod string, maxRetries int) (*entities.SettlementStats, error) {
	args := m.Called(ctx, currentPeriod, maxRetries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SettlementStats), args.Error(1)
}

// MockSettlementDetailRepository is a mock implementation of SettlementDetailRepository
type MockSettlementDetailRepository struct {
	mock.Mock
}

func (m *MockSettlementDetailRepository) CreateIfAbsent(ctx context.Context, detail *entities.SettlementDetail) (bool, error) {
	args := m.Called(ctx, detail)
	return args.Bool(0), args.Error(1)
}

func (m *MockSettlementDetailRepository) GetBySettlementAndPayment(ctx context.Context, settlementID, paymentID int64) (*entities.SettlementDetail, error) {
	args := m.Called(ctx, settlementID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SettlementDetail), args.Error(1)
}

func (m *MockSettlementDetailRepository) GetBySettlement(ctx context.Context, settlementID int64) ([]*entities.SettlementDetail, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SettlementDetail), args.Error(1)
}

// MockSettlementReversalRepository is a mock implementation of SettlementReversalRepository
type MockSettlementReversalRepository struct {
	mock.Mock
}

func (m *MockSettlementReversalRepository) CreateIfAbsent(ctx context.Context, reversal *entities.SettlementReversal) (bool, error) {
	args := m.Called(ctx, reversal)
	return args.Bool(0), args.Error(1)
}

func (m *MockSettlementReversalRepository) GetBySettlement(ctx context.Context, settlementID int64) ([]*entities.SettlementReversal, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SettlementReversal), args.Error(1)
}

// MockPaymentRepository is a mock implementation of PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) ListConfirmedBetween(ctx context.Context, from, to time.Time, after entities.PaymentCursor, limit int) ([]*entities.PaymentRecord, error) {
	args := m.Called(ctx, from, to, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) CountUnattributedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Error(1)
}

// MockCreatorRepository is a mock implementation of CreatorRepository
type MockCreatorRepository struct {
	mock.Mock
}

func (m *MockCreatorRepository) ResolveCreatorID(ctx context.Context, orderID int64) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreatorRepository) GetDisplayName(ctx context.Context, creatorID int64) (string, error) {
	args := m.Called(ctx, creatorID)
	return args.String(0), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockPayoutRail is a mock implementation of PayoutRail
type MockPayoutRail struct {
	mock.Mock
}

func (m *MockPayoutRail) AttemptPayout(ctx context.Context, creatorID int64, amount int64) (*PayoutResult, error) {
	args := m.Called(ctx, creatorID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutResult), args.Error(1)
}

// MockPayoutRunner is a mock implementation of PayoutRunner
type MockPayoutRunner struct {
	mock.Mock
}

func (m *MockPayoutRunner) Execute(ctx context.Context, settlementID int64) (*PayoutOutcome, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutOutcome), args.Error(1)
}

func (m *MockPayoutRunner) Retry(ctx context.Context, settlementID int64, mode RetryMode) (*PayoutOutcome, error) {
	args := m.Called(ctx, settlementID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutOutcome), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Transaction calls go
// through mock.Mock; repository getters hand back the configured mocks.
type MockUnitOfWork struct {
	mock.Mock

	settlements SettlementRepository
	details     SettlementDetailRepository
	reversals   SettlementReversalRepository
	payments    PaymentRepository
	creators    CreatorRepository
	eventBus    EventPublisher
}

// SetRepositories wires the repositories and event bus returned by the getters
func (m *MockUnitOfWork) SetRepositories(
	settlements SettlementRepository,
	details SettlementDetailRepository,
	reversals SettlementReversalRepository,
	payments PaymentRepository,
	creators CreatorRepository,
	eventBus EventPublisher,
) {
	m.settlements = settlements
	m.details = details
	m.reversals = reversals
	m.payments = payments
	m.creators = creators
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) SettlementRepository() SettlementRepository {
	return m.settlements
}

func (m *MockUnitOfWork) SettlementDetailRepository() SettlementDetailRepository {
	return m.details
}

func (m *MockUnitOfWork) SettlementReversalRepository() SettlementReversalRepository {
	return m.reversals
}

func (m *MockUnitOfWork) PaymentRepository() PaymentRepository {
	return m.payments
}

func (m *MockUnitOfWork) CreatorRepository() CreatorRepository {
	return m.creators
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory hands out the same MockUnitOfWork on every Create
type MockUnitOfWorkFactory struct {
	UoW *MockUnitOfWork
}

func (f *MockUnitOfWorkFactory) Create() UnitOfWork {
	return f.UoW
}

// MockTransactionalEventPublisher is a mock implementation of TransactionalEventPublisher
type MockTransactionalEventPublisher struct {
	mock.Mock
}

func (m *MockTransactionalEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockTransactionalEventPublisher) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransactionalEventPublisher) Discard() {
	m.Called()
}

// MockBatchRunRecorder is a mock implementation of BatchRunRecorder
type MockBatchRunRecorder struct {
	mock.Mock
}

func (m *MockBatchRunRecorder) Create(ctx context.Context, run *entities.BatchRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}
