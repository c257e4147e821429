package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
)

// Service hands invoice rendering to the billing side through the outbox.
type Service interface {
	GenerateInvoices(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type service struct {
	db     dbpkg.TxRunner
	outbox outboxEmitter
	logg   *logger.Logger
}

func NewService(db dbpkg.TxRunner, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: db, outbox: emitter, logg: logg}, nil
}

// GenerateInvoices requests invoices for the order once. It reports whether a
// new request was queued; repeated calls are no-ops.
func (s *service) GenerateInvoices(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var queued bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		storeID := order.StoreID
		created, err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceRequested,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: enums.ActorRoleSystem, StoreID: &storeID},
			Data: payloads.InvoiceRequestedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				StoreID:     order.StoreID,
				Total:       order.Total.StringFixed(2),
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue invoice request")
		}
		queued = created
		return nil
	})
	if err != nil {
		return false, err
	}

	if !queued {
		s.logg.Debug(s.logg.WithOrderID(ctx, orderID.String()), "invoice already requested")
	}
	return queued, nil
}
