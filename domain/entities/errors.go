package entities

import "errors"

var (
	// ErrDuplicateSettlement is returned when a settlement for the same creator and period already exists
	ErrDuplicateSettlement = errors.New("settlement already exists for creator and period")

	// ErrUnattributableCreator is returned when a payment cannot be traced back to a creator
	ErrUnattributableCreator = errors.New("payment cannot be attributed to a creator")

	// ErrPayoutFailure wraps every payout rail failure, including timeouts
	ErrPayoutFailure = errors.New("payout failed")

	// ErrRetryCeilingExceeded is returned when a settlement has used all of its payout retries
	ErrRetryCeilingExceeded = errors.New("payout retry ceiling exceeded")

	ErrSettlementNotFound = errors.New("settlement not found")
	ErrForbidden          = errors.New("settlement does not belong to creator")
	ErrInvalidTransition  = errors.New("invalid settlement status transition")
	ErrAlreadyCompleted   = errors.New("settlement already paid out")

	// ErrCooldownActive is returned when a scheduled retry fires before the cool-down has elapsed
	ErrCooldownActive = errors.New("payout retry cool-down has not elapsed")

	// ErrSettlementClosed is returned when a paid-out settlement would need to be adjusted
	ErrSettlementClosed = errors.New("settlement is closed for adjustments")

	// ErrPeriodNotElapsed is returned when a batch sweep targets a period that has not ended yet
	ErrPeriodNotElapsed = errors.New("settlement period has not ended")

	ErrInvalidPeriod = errors.New("invalid settlement period")
	ErrInvalidStatus = errors.New("invalid settlement status")
	ErrInvalidAmount = errors.New("amount must not be negative")
)
