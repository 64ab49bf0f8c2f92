package service

import (
	"context"
	"time"

	"creatorpay/domain/entities"
	"creatorpay/events"
)

// SettlementRepository defines the interface for settlement data access
type SettlementRepository interface {
	// GetByID returns nil, nil when the settlement does not exist
	GetByID(ctx context.Context, id int64) (*entities.Settlement, error)
	// GetByIDForUpdate locks the settlement row for the rest of the transaction
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.Settlement, error)
	GetByCreatorAndPeriod(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error)
	GetByCreatorAndPeriodForUpdate(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error)

	// Create inserts a new settlement and fills in its ID and timestamps.
	// Returns entities.ErrDuplicateSettlement if (creator, period) already exists.
	Create(ctx context.Context, settlement *entities.Settlement) error

	// UpdateAmounts persists total, fee and payout together
	UpdateAmounts(ctx context.Context, settlement *entities.Settlement) error
	// UpdatePayoutState persists status, settled_at, retry_count and last_retry_at
	UpdatePayoutState(ctx context.Context, settlement *entities.Settlement) error

	// ListByCreator returns the creator's settlements, newest period first
	ListByCreator(ctx context.Context, creatorID int64) ([]*entities.Settlement, error)
	Search(ctx context.Context, filter entities.SettlementFilter) ([]*entities.SettlementSummary, int64, error)
	GetRetryCandidates(ctx context.Context, maxRetries int, lastRetryBefore time.Time, limit int) ([]*entities.Settlement, error)
	GetStats(ctx context.Context, currentPeriod string, maxRetries int) (*entities.SettlementStats, error)
}

// SettlementDetailRepository defines the interface for settlement detail data access
type SettlementDetailRepository interface {
	// CreateIfAbsent inserts the detail unless (settlement, payment) is already recorded.
	// Returns true when a row was inserted.
	CreateIfAbsent(ctx context.Context, detail *entities.SettlementDetail) (bool, error)
	GetBySettlementAndPayment(ctx context.Context, settlementID, paymentID int64) (*entities.SettlementDetail, error)
	GetBySettlement(ctx context.Context, settlementID int64) ([]*entities.SettlementDetail, error)
}

// SettlementReversalRepository defines the interface for settlement reversal data access
type SettlementReversalRepository interface {
	CreateIfAbsent(ctx context.Context, reversal *entities.SettlementReversal) (bool, error)
	GetBySettlement(ctx context.Context, settlementID int64) ([]*entities.SettlementReversal, error)
}

// PaymentRepository reads confirmed payments owned by the payment module
type PaymentRepository interface {
	// ListConfirmedBetween returns attributable confirmed payments approved in [from, to),
	// ordered by (creator_id, payment_id) and starting strictly after the cursor
	ListConfirmedBetween(ctx context.Context, from, to time.Time, after entities.PaymentCursor, limit int) ([]*entities.PaymentRecord, error)
	// CountUnattributedBetween counts confirmed payments in [from, to) with no derivable creator
	CountUnattributedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// CreatorRepository resolves creators from the catalog tables
type CreatorRepository interface {
	// ResolveCreatorID follows order -> content|subscription -> channel -> creator.
	// Returns entities.ErrUnattributableCreator when the chain is broken.
	ResolveCreatorID(ctx context.Context, orderID int64) (int64, error)
	GetDisplayName(ctx context.Context, creatorID int64) (string, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher holds events until the surrounding transaction finishes
type TransactionalEventPublisher interface {
	EventPublisher
	Flush(ctx context.Context) error
	Discard()
}

// UnitOfWork manages a database transaction and the repositories bound to it
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SettlementRepository() SettlementRepository
	SettlementDetailRepository() SettlementDetailRepository
	SettlementReversalRepository() SettlementReversalRepository
	PaymentRepository() PaymentRepository
	CreatorRepository() CreatorRepository

	// EventBus returns a publisher whose events are delivered only after Commit
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates new UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// PayoutResult is what the payout rail reports for one attempt
type PayoutResult struct {
	Success   bool
	Reference string
	Reason    string
}

// PayoutRail moves money to a creator. Any error, timeout or unsuccessful
// result is treated as a failed attempt.
type PayoutRail interface {
	AttemptPayout(ctx context.Context, creatorID int64, amount int64) (*PayoutResult, error)
}
