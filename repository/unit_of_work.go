package repository

import (
	"context"
	"errors"
	"fmt"

	"creatorpay/database"
	"creatorpay/service"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher service.TransactionalEventPublisher
	settlementRepo         service.SettlementRepository
	detailRepo             service.SettlementDetailRepository
	reversalRepo           service.SettlementReversalRepository
	paymentRepo            service.PaymentRepository
	creatorRepo            service.CreatorRepository
}

// UnitOfWorkFactory builds transaction-scoped units of work over one pool
type UnitOfWorkFactory struct {
	db *database.DB
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db}
}

// CreateWithPublisher creates a UnitOfWork whose events go through transactionalPublisher
func (f *UnitOfWorkFactory) CreateWithPublisher(transactionalPublisher service.TransactionalEventPublisher) service.UnitOfWork {
	return &unitOfWork{
		db:                     f.db,
		transactionalPublisher: transactionalPublisher,
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.settlementRepo = newSettlementRepositoryWithTx(tx)
	u.detailRepo = newSettlementDetailRepositoryWithTx(tx)
	u.reversalRepo = newSettlementReversalRepositoryWithTx(tx)
	u.paymentRepo = newPaymentRepositoryWithTx(tx)
	u.creatorRepo = newCreatorRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and then flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// The data is durable at this point; a failed publish is logged, not returned
	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			log.WithError(err).Error("Failed to flush events after commit")
		}
	}

	return nil
}

// Rollback rolls back the transaction. Safe to call after Commit.
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}

	return nil
}

// SettlementRepository returns the settlement repository for this unit of work
func (u *unitOfWork) SettlementRepository() service.SettlementRepository {
	if u.settlementRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.settlementRepo
}

// SettlementDetailRepository returns the settlement detail repository for this unit of work
func (u *unitOfWork) SettlementDetailRepository() service.SettlementDetailRepository {
	if u.detailRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.detailRepo
}

// SettlementReversalRepository returns the settlement reversal repository for this unit of work
func (u *unitOfWork) SettlementReversalRepository() service.SettlementReversalRepository {
	if u.reversalRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.reversalRepo
}

// PaymentRepository returns the payment repository for this unit of work
func (u *unitOfWork) PaymentRepository() service.PaymentRepository {
	if u.paymentRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.paymentRepo
}

// CreatorRepository returns the creator repository for this unit of work
func (u *unitOfWork) CreatorRepository() service.CreatorRepository {
	if u.creatorRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.creatorRepo
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("unit of work has no event publisher")
	}
	return u.transactionalPublisher
}
