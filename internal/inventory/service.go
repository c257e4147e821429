package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
)

const (
	opReserve  = "reserve"
	opRelease  = "release"
	opConsume  = "consume"
	opSetStock = "set_stock"
)

// Service is the public inventory surface. Each call is its own unit of work;
// events and audit rows are written after commit and never fail the call.
type Service interface {
	ReserveInventory(ctx context.Context, input ReserveInput, actor Actor) (*ReserveResult, error)
	ReleaseInventory(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID, reason string, actor Actor) (*ReleaseResult, error)
	ConsumeInventory(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID, actor Actor) (*ConsumeResult, error)
	SetStock(ctx context.Context, input SetStockInput, actor Actor) (*models.InventoryCounter, error)
	ListReservations(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
}

type auditSink interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// ServiceParams bundles the inventory service dependencies.
type ServiceParams struct {
	Repo          Repository
	Manager       *Manager
	DB            dbpkg.TxRunner
	Publisher     outbox.Publisher
	Audit         auditSink
	Metrics       *metrics.FulfillmentMetrics
	Logger        *logger.Logger
	RetryAttempts int
}

type service struct {
	repo      Repository
	manager   *Manager
	db        dbpkg.TxRunner
	publisher outbox.Publisher
	audit     auditSink
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	attempts  int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Manager == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit sink required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &service{
		repo:      params.Repo,
		manager:   params.Manager,
		db:        params.DB,
		publisher: params.Publisher,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		attempts:  attempts,
	}, nil
}

func (s *service) ReserveInventory(ctx context.Context, input ReserveInput, actor Actor) (*ReserveResult, error) {
	actor = actor.orSystem()
	var reservations []models.Reservation
	err := dbpkg.RetryTx(ctx, s.db, s.attempts, func(tx *gorm.DB) error {
		rows, err := s.manager.Reserve(ctx, tx, input)
		if err != nil {
			return err
		}
		reservations = rows
		return nil
	})
	if err != nil {
		s.metrics.ObserveInventory(opReserve, metrics.ResultFailure, 0)
		return nil, err
	}

	result := &ReserveResult{OrderID: input.OrderID, Reservations: reservations}
	units := 0
	lines := make([]payloads.ReservationLine, 0, len(reservations))
	for _, r := range reservations {
		units += r.Quantity
		result.ExpiresAt = r.ExpiresAt
		lines = append(lines, payloads.ReservationLine{
			ReservationID: r.ID,
			VariantID:     r.VariantID,
			SupplierID:    r.SupplierID,
			OriginID:      r.OriginID,
			Quantity:      r.Quantity,
		})
	}
	s.metrics.ObserveInventory(opReserve, metrics.ResultSuccess, units)

	logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
	s.publish(logCtx, outbox.DomainEvent{
		EventType:     enums.EventInventoryReserved,
		AggregateType: enums.AggregateReservation,
		AggregateID:   input.OrderID,
		Actor:         actorRef(actor, &input.StoreID),
		Data: payloads.InventoryReservedEvent{
			OrderID:   input.OrderID,
			StoreID:   input.StoreID,
			ExpiresAt: result.ExpiresAt,
			Lines:     lines,
		},
	})
	s.record(logCtx, audit.Entry{
		StoreID:     input.StoreID,
		EntityType:  audit.EntityReservation,
		EntityID:    input.OrderID,
		Action:      "inventory.reserve",
		ActorRole:   actor.Role,
		ActorID:     actor.ID,
		Description: fmt.Sprintf("reserved %d unit(s) across %d item(s)", units, len(reservations)),
		After:       lines,
	})
	return result, nil
}

func (s *service) ReleaseInventory(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID, reason string, actor Actor) (*ReleaseResult, error) {
	actor = actor.orSystem()
	if reason == "" {
		reason = ReleaseReasonDefault
	}
	var released int
	err := dbpkg.RetryTx(ctx, s.db, s.attempts, func(tx *gorm.DB) error {
		n, err := s.manager.Release(ctx, tx, orderID, storeID, reason)
		if err != nil {
			return err
		}
		released = n
		return nil
	})
	if err != nil {
		s.metrics.ObserveInventory(opRelease, metrics.ResultFailure, 0)
		return nil, err
	}

	result := &ReleaseResult{OrderID: orderID, Reason: reason, ReleasedCount: released}
	if released == 0 {
		s.metrics.ObserveInventory(opRelease, metrics.ResultNoop, 0)
		return result, nil
	}
	s.metrics.ObserveInventory(opRelease, metrics.ResultSuccess, released)

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.publish(logCtx, outbox.DomainEvent{
		EventType:     enums.EventInventoryReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   orderID,
		Actor:         actorRef(actor, storeID),
		Data: payloads.InventoryReleasedEvent{
			OrderID:       orderID,
			StoreID:       storeID,
			Reason:        reason,
			ReleasedCount: released,
		},
	})
	s.record(logCtx, audit.Entry{
		StoreID:     derefStore(storeID),
		EntityType:  audit.EntityReservation,
		EntityID:    orderID,
		Action:      "inventory.release",
		ActorRole:   actor.Role,
		ActorID:     actor.ID,
		Description: fmt.Sprintf("released %d reservation(s): %s", released, reason),
		After:       result,
	})
	return result, nil
}

func (s *service) ConsumeInventory(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID, actor Actor) (*ConsumeResult, error) {
	actor = actor.orSystem()
	var consumed int
	err := dbpkg.RetryTx(ctx, s.db, s.attempts, func(tx *gorm.DB) error {
		n, err := s.manager.Consume(ctx, tx, orderID, storeID)
		if err != nil {
			return err
		}
		consumed = n
		return nil
	})
	if err != nil {
		s.metrics.ObserveInventory(opConsume, metrics.ResultFailure, 0)
		return nil, err
	}

	result := &ConsumeResult{OrderID: orderID, ConsumedCount: consumed}
	if consumed == 0 {
		s.metrics.ObserveInventory(opConsume, metrics.ResultNoop, 0)
		return result, nil
	}
	s.metrics.ObserveInventory(opConsume, metrics.ResultSuccess, consumed)

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.publish(logCtx, outbox.DomainEvent{
		EventType:     enums.EventInventoryConsumed,
		AggregateType: enums.AggregateReservation,
		AggregateID:   orderID,
		Actor:         actorRef(actor, storeID),
		Data: payloads.InventoryConsumedEvent{
			OrderID:       orderID,
			StoreID:       storeID,
			ConsumedCount: consumed,
		},
	})
	s.record(logCtx, audit.Entry{
		StoreID:     derefStore(storeID),
		EntityType:  audit.EntityReservation,
		EntityID:    orderID,
		Action:      "inventory.consume",
		ActorRole:   actor.Role,
		ActorID:     actor.ID,
		Description: fmt.Sprintf("consumed %d reservation(s)", consumed),
		After:       result,
	})
	return result, nil
}

func (s *service) SetStock(ctx context.Context, input SetStockInput, actor Actor) (*models.InventoryCounter, error) {
	actor = actor.orSystem()
	var counter *models.InventoryCounter
	err := dbpkg.RetryTx(ctx, s.db, s.attempts, func(tx *gorm.DB) error {
		c, err := s.manager.SetStock(ctx, tx, input)
		if err != nil {
			return err
		}
		counter = c
		return nil
	})
	if err != nil {
		s.metrics.ObserveInventory(opSetStock, metrics.ResultFailure, 0)
		return nil, err
	}
	s.metrics.ObserveInventory(opSetStock, metrics.ResultSuccess, 0)

	s.record(ctx, audit.Entry{
		StoreID:     input.Key.StoreID,
		EntityType:  "inventory_counter",
		EntityID:    counter.ID,
		Action:      "inventory.set_stock",
		ActorRole:   actor.Role,
		ActorID:     actor.ID,
		Description: fmt.Sprintf("available stock set to %d", input.Available),
		After:       counter,
	})
	return counter, nil
}

func (s *service) ListReservations(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	return rows, nil
}

func (s *service) publish(ctx context.Context, event outbox.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_type", event.EventType), "failed to publish inventory event", err)
	}
}

func (s *service) record(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logg.Error(ctx, "failed to write inventory audit entry", err)
	}
}

func actorRef(actor Actor, storeID *uuid.UUID) *outbox.ActorRef {
	ref := &outbox.ActorRef{Role: actor.Role, StoreID: storeID}
	if actor.ID != nil {
		ref.ID = *actor.ID
	}
	return ref
}

func derefStore(storeID *uuid.UUID) uuid.UUID {
	if storeID == nil {
		return uuid.Nil
	}
	return *storeID
}
