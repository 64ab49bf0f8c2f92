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

var payoutNow = time.Date(2024, time.June, 1, 3, 0, 0, 0, time.UTC)

func testPolicy() PayoutPolicy {
	return PayoutPolicy{MaxRetries: 3, Cooldown: time.Hour, Timeout: time.Second}
}

func newTestExecutor(mocks *TestMocks, rail PayoutRail) *PayoutExecutor {
	return NewPayoutExecutor(mocks.Factory, rail, testPolicy()).WithClock(fixedClock(payoutNow))
}

func TestPayoutExecutor_Execute_Success(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	rail := new(MockPayoutRail)
	s := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 8000)

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
	rail.On("AttemptPayout", mock.Anything, int64(TestCreatorID), int64(7200)).Return(&PayoutResult{Success: true, Reference: "tx-1"}, nil)
	mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
	mocks.Events.On("Publish", mock.MatchedBy(func(e events.SettlementPaidEvent) bool {
		return e.SettlementID == TestSettlementID && e.PayoutAmount == 7200 && e.SettledAt.Equal(payoutNow)
	})).Return(nil)

	outcome, err := newTestExecutor(mocks, rail).Execute(ctx, TestSettlementID)

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, "tx-1", outcome.Reference)
	assert.Equal(t, 0, outcome.RetryCount)
	assert.Equal(t, entities.SettlementStatusCompleted, s.Status)
	require.NotNil(t, s.SettledAt)
	assert.True(t, s.SettledAt.Equal(payoutNow))
	mocks.AssertAllExpectations(t)
	rail.AssertExpectations(t)
}

func TestPayoutExecutor_Execute_FailureIsState(t *testing.T) {
	cases := []struct {
		name   string
		result *PayoutResult
		err    error
		reason string
	}{
		{name: "rail error", err: errors.New("bank unreachable"), reason: "bank unreachable"},
		{name: "rejected", result: &PayoutResult{Success: false, Reason: "account frozen"}, reason: "account frozen"},
		{name: "nil result", reason: "no result"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mocks := NewTestMocks()
			mocks.ExpectCommit()
			rail := new(MockPayoutRail)
			s := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 10000)

			mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
			if tc.result != nil {
				rail.On("AttemptPayout", mock.Anything, int64(TestCreatorID), int64(9000)).Return(tc.result, tc.err)
			} else {
				rail.On("AttemptPayout", mock.Anything, int64(TestCreatorID), int64(9000)).Return(nil, tc.err)
			}
			mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
			mocks.Events.On("Publish", mock.MatchedBy(func(e events.SettlementPayoutFailedEvent) bool {
				return e.RetryCount == 1 && !e.Exhausted
			})).Return(nil)

			outcome, err := newTestExecutor(mocks, rail).Execute(ctx, TestSettlementID)

			require.NoError(t, err)
			assert.False(t, outcome.Succeeded())
			assert.Contains(t, outcome.Reason, tc.reason)
			assert.Equal(t, entities.SettlementStatusFailed, s.Status)
			assert.Equal(t, 1, s.RetryCount)
			require.NotNil(t, s.LastRetryAt)
			assert.True(t, s.LastRetryAt.Equal(payoutNow))
			assert.Nil(t, s.SettledAt)
		})
	}
}

func TestPayoutExecutor_Execute_TimeoutIsFailure(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	rail := new(MockPayoutRail)
	s := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 1000)

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
	rail.On("AttemptPayout", mock.Anything, int64(TestCreatorID), int64(900)).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.DeadlineExceeded)
	mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
	mocks.Events.On("Publish", mock.Anything).Return(nil)

	executor := NewPayoutExecutor(mocks.Factory, rail, PayoutPolicy{MaxRetries: 3, Cooldown: time.Hour, Timeout: 20 * time.Millisecond})
	outcome, err := executor.Execute(ctx, TestSettlementID)

	require.NoError(t, err)
	assert.Contains(t, outcome.Reason, "timed out")
	assert.Equal(t, entities.SettlementStatusFailed, s.Status)
}

func TestPayoutExecutor_Execute_RailPanicIsFailure(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	rail := new(MockPayoutRail)
	s := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 1000)

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
	rail.On("AttemptPayout", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("nil pointer in bank client")
	}).Return(nil, nil)
	mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
	mocks.Events.On("Publish", mock.Anything).Return(nil)

	outcome, err := newTestExecutor(mocks, rail).Execute(ctx, TestSettlementID)

	require.NoError(t, err)
	assert.Contains(t, outcome.Reason, "panicked")
	assert.Equal(t, entities.SettlementStatusFailed, s.Status)
}

func TestPayoutExecutor_Execute_Refusals(t *testing.T) {
	completed := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 1000)
	require.NoError(t, completed.MarkCompleted(payoutNow))

	cases := []struct {
		name       string
		settlement *entities.Settlement
		want       error
	}{
		{name: "missing", settlement: nil, want: entities.ErrSettlementNotFound},
		{name: "completed", settlement: completed, want: entities.ErrAlreadyCompleted},
		{name: "exhausted", settlement: failedSettlement(TestSettlementID, 1000, 3, payoutNow.Add(-2*time.Hour)), want: entities.ErrRetryCeilingExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mocks := NewTestMocks()
			rail := new(MockPayoutRail)

			if tc.settlement == nil {
				mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(nil, nil)
			} else {
				mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(tc.settlement, nil)
			}

			_, err := newTestExecutor(mocks, rail).Execute(ctx, TestSettlementID)

			assert.ErrorIs(t, err, tc.want)
			rail.AssertNotCalled(t, "AttemptPayout", mock.Anything, mock.Anything, mock.Anything)
			mocks.UoW.AssertNotCalled(t, "Commit")
		})
	}
}

func TestPayoutExecutor_Retry_ScheduledRespectsCooldown(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	rail := new(MockPayoutRail)
	s := failedSettlement(TestSettlementID, 10000, 1, payoutNow.Add(-30*time.Minute))

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)

	_, err := newTestExecutor(mocks, rail).Retry(ctx, TestSettlementID, RetryModeScheduled)

	assert.ErrorIs(t, err, entities.ErrCooldownActive)
	assert.Equal(t, entities.SettlementStatusFailed, s.Status)
	assert.Equal(t, 1, s.RetryCount)
	rail.AssertNotCalled(t, "AttemptPayout", mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutExecutor_Retry_ManualIgnoresCooldown(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	rail := new(MockPayoutRail)
	s := failedSettlement(TestSettlementID, 10000, 1, payoutNow.Add(-time.Minute))

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
	rail.On("AttemptPayout", mock.Anything, int64(TestCreatorID), int64(9000)).Return(&PayoutResult{Success: true}, nil)
	mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
	mocks.Events.On("Publish", mock.Anything).Return(nil)

	outcome, err := newTestExecutor(mocks, rail).Retry(ctx, TestSettlementID, RetryModeManual)

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, 1, outcome.RetryCount, "a successful retry keeps the failure count")
	assert.Equal(t, entities.SettlementStatusCompleted, s.Status)
}

func TestPayoutExecutor_Retry_AfterCooldownFailsAgain(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectCommit()
	rail := new(MockPayoutRail)
	s := failedSettlement(TestSettlementID, 10000, 2, payoutNow.Add(-2*time.Hour))

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
	rail.On("AttemptPayout", mock.Anything, int64(TestCreatorID), int64(9000)).Return(nil, errors.New("bank down"))
	mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
	mocks.Events.On("Publish", mock.MatchedBy(func(e events.SettlementPayoutFailedEvent) bool {
		return e.RetryCount == 3 && e.Exhausted
	})).Return(nil)

	outcome, err := newTestExecutor(mocks, rail).Retry(ctx, TestSettlementID, RetryModeScheduled)

	require.NoError(t, err)
	assert.True(t, outcome.Exhausted)
	assert.Equal(t, 3, s.RetryCount)
	assert.True(t, s.IsRetryExhausted(3))
	mocks.Events.AssertExpectations(t)
}

func TestPayoutExecutor_Retry_Refusals(t *testing.T) {
	ready := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 1000)
	completed := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 1000)
	require.NoError(t, completed.MarkCompleted(payoutNow))

	cases := []struct {
		name       string
		settlement *entities.Settlement
		want       error
	}{
		{name: "ready", settlement: ready, want: entities.ErrInvalidTransition},
		{name: "completed", settlement: completed, want: entities.ErrAlreadyCompleted},
		{name: "ceiling", settlement: failedSettlement(TestSettlementID, 1000, 3, payoutNow.Add(-24*time.Hour)), want: entities.ErrRetryCeilingExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mocks := NewTestMocks()
			rail := new(MockPayoutRail)

			mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(tc.settlement, nil)

			_, err := newTestExecutor(mocks, rail).Retry(ctx, TestSettlementID, RetryModeManual)

			assert.ErrorIs(t, err, tc.want)
			rail.AssertNotCalled(t, "AttemptPayout", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPayoutExecutor_CommitFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	rail := new(MockPayoutRail)
	s := readySettlement(TestSettlementID, TestCreatorID, TestPeriod, 1000)

	mocks.Settlements.On("GetByIDForUpdate", ctx, int64(TestSettlementID)).Return(s, nil)
	rail.On("AttemptPayout", mock.Anything, mock.Anything, mock.Anything).Return(&PayoutResult{Success: true}, nil)
	mocks.Settlements.On("UpdatePayoutState", ctx, s).Return(nil)
	mocks.Events.On("Publish", mock.Anything).Return(nil)
	mocks.UoW.On("Commit").Return(errors.New("serialization failure"))

	_, err := newTestExecutor(mocks, rail).Execute(ctx, TestSettlementID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}
