package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus represents the payout state of a settlement
type SettlementStatus string

const (
	SettlementStatusReady     SettlementStatus = "READY"
	SettlementStatusCompleted SettlementStatus = "COMPLETED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// IsValid reports whether s is a known status
func (s SettlementStatus) IsValid() bool {
	switch s {
	case SettlementStatusReady, SettlementStatusCompleted, SettlementStatusFailed:
		return true
	}
	return false
}

// FeeRatePercent is the platform's cut of every settlement
const FeeRatePercent = 10

var feeRate = decimal.NewFromInt(FeeRatePercent).Div(decimal.NewFromInt(100))

// CalculatePlatformFee returns floor(total * fee rate) in minor units
func CalculatePlatformFee(total int64) int64 {
	return decimal.NewFromInt(total).Mul(feeRate).Floor().IntPart()
}

// Settlement is one creator's earnings for one calendar month
type Settlement struct {
	ID                int64            `db:"id"`
	CreatorID         int64            `db:"creator_id"`
	Period            string           `db:"period"`
	TotalSalesAmount  int64            `db:"total_sales_amount"`
	PlatformFeeAmount int64            `db:"platform_fee_amount"` // Always derived from TotalSalesAmount
	PayoutAmount      int64            `db:"payout_amount"`       // Always derived from TotalSalesAmount
	Status            SettlementStatus `db:"status"`
	SettledAt         *time.Time       `db:"settled_at"` // NULL until COMPLETED
	RetryCount        int              `db:"retry_count"`
	LastRetryAt       *time.Time       `db:"last_retry_at"`
	CreatedAt         time.Time        `db:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at"`
}

// NewSettlement creates a READY settlement seeded with initial sales
func NewSettlement(creatorID int64, period string, initialSales int64) (*Settlement, error) {
	if _, err := ParsePeriod(period, time.UTC); err != nil {
		return nil, err
	}
	if initialSales < 0 {
		return nil, ErrInvalidAmount
	}
	s := &Settlement{
		CreatorID:        creatorID,
		Period:           period,
		TotalSalesAmount: initialSales,
		Status:           SettlementStatusReady,
	}
	s.recalculate()
	return s, nil
}

// AddSales increases the settled total and recomputes fee and payout
func (s *Settlement) AddSales(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	s.TotalSalesAmount += amount
	s.recalculate()
	return nil
}

// SubtractSales decreases the settled total, never going below zero
func (s *Settlement) SubtractSales(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	s.TotalSalesAmount -= amount
	if s.TotalSalesAmount < 0 {
		s.TotalSalesAmount = 0
	}
	s.recalculate()
	return nil
}

func (s *Settlement) recalculate() {
	s.PlatformFeeAmount = CalculatePlatformFee(s.TotalSalesAmount)
	s.PayoutAmount = s.TotalSalesAmount - s.PlatformFeeAmount
}

// IsCompleted returns true once the payout has succeeded
func (s *Settlement) IsCompleted() bool {
	return s.Status == SettlementStatusCompleted
}

// CanAttemptPayout returns true if the payout rail may be called for this settlement
func (s *Settlement) CanAttemptPayout() bool {
	return s.Status == SettlementStatusReady || s.Status == SettlementStatusFailed
}

// IsRetryExhausted returns true when no further payout retries are allowed
func (s *Settlement) IsRetryExhausted(maxRetries int) bool {
	return s.Status == SettlementStatusFailed && s.RetryCount >= maxRetries
}

// IsRetryDue returns true when the cool-down since the last failed attempt has elapsed
func (s *Settlement) IsRetryDue(now time.Time, cooldown time.Duration) bool {
	if s.LastRetryAt == nil {
		return true
	}
	return s.LastRetryAt.Before(now.Add(-cooldown))
}

// MarkCompleted records a successful payout
func (s *Settlement) MarkCompleted(now time.Time) error {
	if !s.CanAttemptPayout() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SettlementStatusCompleted)
	}
	s.Status = SettlementStatusCompleted
	settledAt := now
	s.SettledAt = &settledAt
	return nil
}

// MarkFailed records a failed payout attempt
func (s *Settlement) MarkFailed(now time.Time) error {
	if !s.CanAttemptPayout() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SettlementStatusFailed)
	}
	s.Status = SettlementStatusFailed
	s.RetryCount++
	lastRetryAt := now
	s.LastRetryAt = &lastRetryAt
	return nil
}

// MarkReadyForRetry moves a failed settlement back to READY ahead of another attempt
func (s *Settlement) MarkReadyForRetry() error {
	if s.Status != SettlementStatusFailed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SettlementStatusReady)
	}
	s.Status = SettlementStatusReady
	return nil
}

// SettlementDetail records that a payment's amount was applied to a settlement
type SettlementDetail struct {
	ID           int64     `db:"id"`
	SettlementID int64     `db:"settlement_id"`
	PaymentID    int64     `db:"payment_id"`
	Amount       int64     `db:"amount"`
	CreatedAt    time.Time `db:"created_at"`
}

// SettlementReversal records that a cancelled payment's amount was taken back out of a settlement
type SettlementReversal struct {
	ID           int64     `db:"id"`
	SettlementID int64     `db:"settlement_id"`
	PaymentID    int64     `db:"payment_id"`
	Amount       int64     `db:"amount"`
	CreatedAt    time.Time `db:"created_at"`
}
