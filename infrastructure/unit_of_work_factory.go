package infrastructure

import (
	"creatorpay/database"
	"creatorpay/repository"
	"creatorpay/service"
)

// UnitOfWorkFactory implements service.UnitOfWorkFactory. Each unit of work
// gets its own transactional publisher in front of the shared event publisher.
type UnitOfWorkFactory struct {
	repoFactory interface {
		CreateWithPublisher(transactionalPublisher service.TransactionalEventPublisher) service.UnitOfWork
	}
	eventPublisher service.EventPublisher
}

// NewUnitOfWorkFactory creates a new UnitOfWorkFactory
func NewUnitOfWorkFactory(db *database.DB, eventPublisher service.EventPublisher) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{
		repoFactory:    repository.NewUnitOfWorkFactory(db),
		eventPublisher: eventPublisher,
	}
}

// Create creates a new UnitOfWork with a fresh transactional publisher
func (f *UnitOfWorkFactory) Create() service.UnitOfWork {
	return f.repoFactory.CreateWithPublisher(NewTransactionalPublisher(f.eventPublisher))
}
