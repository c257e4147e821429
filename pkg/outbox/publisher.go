package outbox

import (
	"context"
	"errors"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
)

// Publisher delivers a domain event outside of the caller's transaction.
// Business code depends on this interface so the durable outbox can be
// replaced by any broker producer.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event DomainEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event DomainEvent) error {
	return f(ctx, event)
}

// TxPublisher writes each event to the outbox in its own short transaction.
type TxPublisher struct {
	tx      dbpkg.TxRunner
	service *Service
}

func NewTxPublisher(tx dbpkg.TxRunner, service *Service) (*TxPublisher, error) {
	if tx == nil {
		return nil, errors.New("tx runner required")
	}
	if service == nil {
		return nil, errors.New("outbox service required")
	}
	return &TxPublisher{tx: tx, service: service}, nil
}

func (p *TxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	return p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return p.service.Emit(ctx, tx, event)
	})
}
