package service

import (
	"context"
	"errors"
	"fmt"

	"creatorpay/domain/entities"
)

// Ledger is the only writer of settlement amounts. It must be built from the
// repositories of a single unit of work so every call shares one transaction.
type Ledger struct {
	settlements SettlementRepository
	details     SettlementDetailRepository
	reversals   SettlementReversalRepository
}

// NewLedger creates a ledger over transaction-scoped repositories
func NewLedger(settlements SettlementRepository, details SettlementDetailRepository, reversals SettlementReversalRepository) *Ledger {
	return &Ledger{
		settlements: settlements,
		details:     details,
		reversals:   reversals,
	}
}

// NewLedgerForUnitOfWork creates a ledger bound to a started unit of work
func NewLedgerForUnitOfWork(uow UnitOfWork) *Ledger {
	return NewLedger(uow.SettlementRepository(), uow.SettlementDetailRepository(), uow.SettlementReversalRepository())
}

// FindOrNone returns the settlement for (creator, period) or nil
func (l *Ledger) FindOrNone(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error) {
	s, err := l.settlements.GetByCreatorAndPeriod(ctx, creatorID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to find settlement: %w", err)
	}
	return s, nil
}

// FindForUpdate returns the settlement for (creator, period) with its row locked, or nil
func (l *Ledger) FindForUpdate(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error) {
	s, err := l.settlements.GetByCreatorAndPeriodForUpdate(ctx, creatorID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to lock settlement: %w", err)
	}
	return s, nil
}

// Create inserts a READY settlement seeded with initialSales.
// Returns entities.ErrDuplicateSettlement if one already exists.
func (l *Ledger) Create(ctx context.Context, creatorID int64, period string, initialSales int64) (*entities.Settlement, error) {
	s, err := entities.NewSettlement(creatorID, period, initialSales)
	if err != nil {
		return nil, err
	}
	if err := l.settlements.Create(ctx, s); err != nil {
		if errors.Is(err, entities.ErrDuplicateSettlement) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	return s, nil
}

// FindOrCreateForUpdate returns the locked settlement for (creator, period),
// creating an empty one first if needed. A lost insert race falls back to
// locking the row the winner created.
func (l *Ledger) FindOrCreateForUpdate(ctx context.Context, creatorID int64, period string) (*entities.Settlement, bool, error) {
	s, err := l.Create(ctx, creatorID, period, 0)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, entities.ErrDuplicateSettlement) {
		return nil, false, err
	}

	s, err = l.FindForUpdate(ctx, creatorID, period)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, fmt.Errorf("settlement for creator %d period %s vanished after duplicate insert", creatorID, period)
	}
	return s, false, nil
}

// AddSales adds amount to the settlement and persists the recomputed amounts
func (l *Ledger) AddSales(ctx context.Context, s *entities.Settlement, amount int64) error {
	if err := s.AddSales(amount); err != nil {
		return err
	}
	if err := l.settlements.UpdateAmounts(ctx, s); err != nil {
		return fmt.Errorf("failed to persist settlement amounts: %w", err)
	}
	return nil
}

// SubtractSales removes amount from the settlement, clamped at zero
func (l *Ledger) SubtractSales(ctx context.Context, s *entities.Settlement, amount int64) error {
	if err := s.SubtractSales(amount); err != nil {
		return err
	}
	if err := l.settlements.UpdateAmounts(ctx, s); err != nil {
		return fmt.Errorf("failed to persist settlement amounts: %w", err)
	}
	return nil
}

// RecordDetailIfAbsent records that paymentID was applied to s.
// Returns false when the payment was already recorded.
func (l *Ledger) RecordDetailIfAbsent(ctx context.Context, s *entities.Settlement, paymentID, amount int64) (bool, error) {
	inserted, err := l.details.CreateIfAbsent(ctx, &entities.SettlementDetail{
		SettlementID: s.ID,
		PaymentID:    paymentID,
		Amount:       amount,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record settlement detail: %w", err)
	}
	return inserted, nil
}

// RecordReversalIfAbsent records that paymentID was taken back out of s.
// Returns false when the reversal was already recorded.
func (l *Ledger) RecordReversalIfAbsent(ctx context.Context, s *entities.Settlement, paymentID, amount int64) (bool, error) {
	inserted, err := l.reversals.CreateIfAbsent(ctx, &entities.SettlementReversal{
		SettlementID: s.ID,
		PaymentID:    paymentID,
		Amount:       amount,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record settlement reversal: %w", err)
	}
	return inserted, nil
}

// FindDetail returns the detail recording paymentID on s, or nil
func (l *Ledger) FindDetail(ctx context.Context, s *entities.Settlement, paymentID int64) (*entities.SettlementDetail, error) {
	detail, err := l.details.GetBySettlementAndPayment(ctx, s.ID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement detail: %w", err)
	}
	return detail, nil
}
