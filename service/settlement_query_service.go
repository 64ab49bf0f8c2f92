package service

import (
	"context"
	"fmt"
	"time"

	"creatorpay/domain/entities"
)

// CreatorSettlementView is a settlement as its creator sees it. The payout
// amount and settlement time are only shown once the money has moved.
type CreatorSettlementView struct {
	ID                int64
	Period            string
	TotalSalesAmount  int64
	PlatformFeeAmount int64
	PayoutAmount      *int64
	Status            entities.SettlementStatus
	SettledAt         *time.Time
}

// CreatorSettlementDetailView adds the applied payments to a creator view
type CreatorSettlementDetailView struct {
	CreatorSettlementView
	Details   []*entities.SettlementDetail
	Reversals []*entities.SettlementReversal
}

func newCreatorSettlementView(s *entities.Settlement) *CreatorSettlementView {
	view := &CreatorSettlementView{
		ID:                s.ID,
		Period:            s.Period,
		TotalSalesAmount:  s.TotalSalesAmount,
		PlatformFeeAmount: s.PlatformFeeAmount,
		Status:            s.Status,
	}
	if s.IsCompleted() {
		payout := s.PayoutAmount
		view.PayoutAmount = &payout
		view.SettledAt = s.SettledAt
	}
	return view
}

// SettlementQueryService serves the creator and admin read models
type SettlementQueryService struct {
	uowFactory UnitOfWorkFactory
	maxRetries int
	location   *time.Location
	now        func() time.Time
}

// NewSettlementQueryService creates a new settlement query service
func NewSettlementQueryService(uowFactory UnitOfWorkFactory, maxRetries int, location *time.Location) *SettlementQueryService {
	if location == nil {
		location = time.UTC
	}
	return &SettlementQueryService{
		uowFactory: uowFactory,
		maxRetries: maxRetries,
		location:   location,
		now:        time.Now,
	}
}

// WithClock replaces the service's time source
func (q *SettlementQueryService) WithClock(now func() time.Time) *SettlementQueryService {
	q.now = now
	return q
}

// readOnly runs fn inside a transaction that is always rolled back
func (q *SettlementQueryService) readOnly(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()
	return fn(uow)
}

// ListForCreator returns the creator's settlements, newest period first
func (q *SettlementQueryService) ListForCreator(ctx context.Context, creatorID int64) ([]*CreatorSettlementView, error) {
	var views []*CreatorSettlementView
	err := q.readOnly(ctx, func(uow UnitOfWork) error {
		settlements, err := uow.SettlementRepository().ListByCreator(ctx, creatorID)
		if err != nil {
			return fmt.Errorf("failed to list settlements: %w", err)
		}
		views = make([]*CreatorSettlementView, 0, len(settlements))
		for _, s := range settlements {
			views = append(views, newCreatorSettlementView(s))
		}
		return nil
	})
	return views, err
}

// GetForCreator returns one settlement with its details. Settlements owned by
// another creator yield entities.ErrForbidden.
func (q *SettlementQueryService) GetForCreator(ctx context.Context, creatorID, settlementID int64) (*CreatorSettlementDetailView, error) {
	var view *CreatorSettlementDetailView
	err := q.readOnly(ctx, func(uow UnitOfWork) error {
		s, err := uow.SettlementRepository().GetByID(ctx, settlementID)
		if err != nil {
			return fmt.Errorf("failed to get settlement: %w", err)
		}
		if s == nil {
			return fmt.Errorf("%w: %d", entities.ErrSettlementNotFound, settlementID)
		}
		if s.CreatorID != creatorID {
			return fmt.Errorf("%w: settlement %d", entities.ErrForbidden, settlementID)
		}

		details, err := uow.SettlementDetailRepository().GetBySettlement(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to get settlement details: %w", err)
		}
		reversals, err := uow.SettlementReversalRepository().GetBySettlement(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to get settlement reversals: %w", err)
		}

		view = &CreatorSettlementDetailView{
			CreatorSettlementView: *newCreatorSettlementView(s),
			Details:               details,
			Reversals:             reversals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Search returns one page of settlements across all creators
func (q *SettlementQueryService) Search(ctx context.Context, filter entities.SettlementFilter) (*entities.SettlementPage, error) {
	filter.Normalize()
	if filter.Period != "" {
		if _, err := entities.ParsePeriod(filter.Period, q.location); err != nil {
			return nil, err
		}
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidStatus, *filter.Status)
	}

	page := &entities.SettlementPage{Page: filter.Page, Size: filter.Size}
	err := q.readOnly(ctx, func(uow UnitOfWork) error {
		items, total, err := uow.SettlementRepository().Search(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to search settlements: %w", err)
		}
		page.Items = items
		page.TotalItems = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetDetail returns a settlement with its creator name, details and reversals
func (q *SettlementQueryService) GetDetail(ctx context.Context, settlementID int64) (*entities.SettlementWithDetails, error) {
	var result *entities.SettlementWithDetails
	err := q.readOnly(ctx, func(uow UnitOfWork) error {
		s, err := uow.SettlementRepository().GetByID(ctx, settlementID)
		if err != nil {
			return fmt.Errorf("failed to get settlement: %w", err)
		}
		if s == nil {
			return fmt.Errorf("%w: %d", entities.ErrSettlementNotFound, settlementID)
		}

		name, err := uow.CreatorRepository().GetDisplayName(ctx, s.CreatorID)
		if err != nil {
			return fmt.Errorf("failed to get creator name: %w", err)
		}
		details, err := uow.SettlementDetailRepository().GetBySettlement(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to get settlement details: %w", err)
		}
		reversals, err := uow.SettlementReversalRepository().GetBySettlement(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to get settlement reversals: %w", err)
		}

		result = &entities.SettlementWithDetails{
			Settlement:  s,
			CreatorName: name,
			Details:     details,
			Reversals:   reversals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetStats summarizes payout totals and status counts
func (q *SettlementQueryService) GetStats(ctx context.Context) (*entities.SettlementStats, error) {
	currentPeriod := entities.PeriodOf(q.now(), q.location)

	var stats *entities.SettlementStats
	err := q.readOnly(ctx, func(uow UnitOfWork) error {
		var err error
		stats, err = uow.SettlementRepository().GetStats(ctx, currentPeriod, q.maxRetries)
		if err != nil {
			return fmt.Errorf("failed to get settlement stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
