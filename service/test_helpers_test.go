package service

import (
	"testing"
	"time"

	"creatorpay/domain/entities"

	"github.com/stretchr/testify/mock"
)

const (
	TestCreatorID    = 7
	TestOtherCreator = 8
	TestOrderID      = 500
	TestPaymentID    = 9001
	TestSettlementID = 42
	TestPeriod       = "2024-05"
)

// TestApprovedAt falls inside TestPeriod
var TestApprovedAt = time.Date(2024, time.May, 14, 10, 30, 0, 0, time.UTC)

// TestMocks holds all mock repositories for easy access
type TestMocks struct {
	Settlements *MockSettlementRepository
	Details     *MockSettlementDetailRepository
	Reversals   *MockSettlementReversalRepository
	Payments    *MockPaymentRepository
	Creators    *MockCreatorRepository
	Events      *MockEventPublisher
	UoW         *MockUnitOfWork
	Factory     *MockUnitOfWorkFactory
}

// NewTestMocks creates a new set of mocks behind a single unit of work.
// Begin and Rollback always succeed; tests opt into Commit explicitly.
func NewTestMocks() *TestMocks {
	m := &TestMocks{
		Settlements: new(MockSettlementRepository),
		Details:     new(MockSettlementDetailRepository),
		Reversals:   new(MockSettlementReversalRepository),
		Payments:    new(MockPaymentRepository),
		Creators:    new(MockCreatorRepository),
		Events:      new(MockEventPublisher),
		UoW:         new(MockUnitOfWork),
	}
	m.UoW.SetRepositories(m.Settlements, m.Details, m.Reversals, m.Payments, m.Creators, m.Events)
	m.Factory = &MockUnitOfWorkFactory{UoW: m.UoW}

	m.UoW.On("Begin", mock.Anything).Return(nil)
	m.UoW.On("Rollback").Return(nil).Maybe()
	return m
}

// ExpectCommit allows the unit of work to commit
func (m *TestMocks) ExpectCommit() {
	m.UoW.On("Commit").Return(nil)
}

// AssertAllExpectations asserts all mock expectations
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.Settlements.AssertExpectations(t)
	m.Details.AssertExpectations(t)
	m.Reversals.AssertExpectations(t)
	m.Payments.AssertExpectations(t)
	m.Creators.AssertExpectations(t)
	m.Events.AssertExpectations(t)
	m.UoW.AssertExpectations(t)
}

// readySettlement builds a persisted-looking READY settlement
func readySettlement(id, creatorID int64, period string, total int64) *entities.Settlement {
	s, err := entities.NewSettlement(creatorID, period, total)
	if err != nil {
		panic(err)
	}
	s.ID = id
	return s
}

// failedSettlement builds a FAILED settlement with the given attempt history
func failedSettlement(id int64, total int64, retryCount int, lastRetryAt time.Time) *entities.Settlement {
	s := readySettlement(id, TestCreatorID, TestPeriod, total)
	s.Status = entities.SettlementStatusFailed
	s.RetryCount = retryCount
	s.LastRetryAt = &lastRetryAt
	return s
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
