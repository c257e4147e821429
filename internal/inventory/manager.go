package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// Manager is the only code path allowed to move stock between the available,
// reserved and total columns. Every method runs inside the caller's
// transaction; an error means the caller must roll back.
type Manager struct {
	repo Repository
	cfg  config.FulfillmentConfig
	now  func() time.Time
}

func NewManager(repo Repository, cfg config.FulfillmentConfig) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &Manager{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reserve holds every requested item or none. Each line is attempted so the
// returned INSUFFICIENT_STOCK error itemizes all shortfalls.
func (m *Manager) Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) ([]models.Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateReserveInput(input); err != nil {
		return nil, err
	}
	if err := m.checkOrderStore(ctx, tx, input.OrderID, input.StoreID); err != nil {
		return nil, err
	}

	now := m.now()
	expiresAt := now.Add(m.ttl(input))

	var (
		reservations = make([]models.Reservation, 0, len(input.Items))
		shortfalls   []Shortfall
	)
	for _, item := range input.Items {
		key := item.key(input.StoreID)

		active, err := m.repo.HasActiveReservation(ctx, tx, input.OrderID, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active reservation")
		}
		if active {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already holds an active reservation for this item").
				WithDetails(map[string]any{
					"variant_id":  item.VariantID,
					"supplier_id": item.SupplierID,
					"origin_id":   item.OriginID,
				})
		}

		counter, err := m.repo.FindCounter(ctx, tx, key)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				shortfalls = append(shortfalls, shortfallFor(item, 0, ReasonCounterNotFound))
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory counter")
		}

		ok, err := m.repo.ReserveStock(ctx, tx, counter.ID, item.Quantity)
		if err != nil {
			return nil, translateStockErr(err, "reserve inventory")
		}
		if !ok {
			shortfalls = append(shortfalls, shortfallFor(item, counter.AvailableStock, ReasonInsufficientAvailable))
			continue
		}

		reservation := models.Reservation{
			StoreID:    input.StoreID,
			OrderID:    input.OrderID,
			CounterID:  counter.ID,
			VariantID:  item.VariantID,
			SupplierID: item.SupplierID,
			OriginID:   item.OriginID,
			Quantity:   item.Quantity,
			Status:     enums.ReservationStatusReserved,
			ExpiresAt:  expiresAt,
			ReservedAt: now,
			Metadata:   input.Metadata.Clone(),
		}
		if err := m.repo.CreateReservation(ctx, tx, &reservation); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_reservations_active_tuple") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already holds an active reservation for this item")
			}
			return nil, translateStockErr(err, "create reservation")
		}
		reservations = append(reservations, reservation)
	}

	if len(shortfalls) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %d item(s)", len(shortfalls)).
			WithDetails(shortfalls)
	}

	if err := m.repo.SetOrderInventoryStatus(ctx, tx, input.OrderID, enums.InventoryStatusReserved); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order inventory status")
	}
	return reservations, nil
}

// Release returns every active hold of the order to available stock.
// Reservations already consumed or released are skipped.
func (m *Manager) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, storeID *uuid.UUID, reason string) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if reason == "" {
		reason = ReleaseReasonDefault
	}

	rows, err := m.repo.ListActiveByOrder(ctx, tx, orderID, storeID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active reservations")
	}

	now := m.now()
	released := 0
	for _, row := range rows {
		moved, err := m.repo.MarkReservation(ctx, tx, row.ID, enums.ReservationStatusReleased, now, &reason)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservation released")
		}
		if !moved {
			continue
		}
		ok, err := m.repo.ReleaseStock(ctx, tx, row.CounterID, row.Quantity)
		if err != nil {
			return 0, translateStockErr(err, "release inventory")
		}
		if !ok {
			return 0, pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below reservation quantity").
				WithDetails(map[string]any{"reservation_id": row.ID, "counter_id": row.CounterID})
		}
		released++
	}

	if released > 0 {
		if err := m.repo.SetOrderInventoryStatus(ctx, tx, orderID, enums.InventoryStatusReleased); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order inventory status")
		}
	}
	return released, nil
}

// Consume removes every active hold of the order from inventory permanently.
func (m *Manager) Consume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, storeID *uuid.UUID) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	rows, err := m.repo.ListActiveByOrder(ctx, tx, orderID, storeID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active reservations")
	}

	now := m.now()
	consumed := 0
	for _, row := range rows {
		moved, err := m.repo.MarkReservation(ctx, tx, row.ID, enums.ReservationStatusConsumed, now, nil)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservation consumed")
		}
		if !moved {
			continue
		}
		ok, err := m.repo.ConsumeStock(ctx, tx, row.CounterID, row.Quantity)
		if err != nil {
			return 0, translateStockErr(err, "consume inventory")
		}
		if !ok {
			return 0, pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below reservation quantity").
				WithDetails(map[string]any{"reservation_id": row.ID, "counter_id": row.CounterID})
		}
		consumed++
	}

	if consumed > 0 {
		if err := m.repo.SetOrderInventoryStatus(ctx, tx, orderID, enums.InventoryStatusConsumed); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order inventory status")
		}
	}
	return consumed, nil
}

// SetStock records stock intake for a counter, creating it when missing.
func (m *Manager) SetStock(ctx context.Context, tx *gorm.DB, input SetStockInput) (*models.InventoryCounter, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.Key.StoreID == uuid.Nil || input.Key.SupplierID == uuid.Nil || input.Key.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store, supplier and variant are required")
	}
	if input.Available < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "available stock must not be negative")
	}
	counter, err := m.repo.UpsertCounter(ctx, tx, input.Key, input.Available)
	if err != nil {
		return nil, translateStockErr(err, "upsert inventory counter")
	}
	return counter, nil
}

// checkOrderStore rejects holds against an order the store does not own. A
// foreign order gets the same answer as a missing one.
func (m *Manager) checkOrderStore(ctx context.Context, tx *gorm.DB, orderID, storeID uuid.UUID) error {
	owner, err := m.repo.FindOrderStore(ctx, tx, orderID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	case owner != storeID:
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}

func (m *Manager) ttl(input ReserveInput) time.Duration {
	if input.TTLMinutes > 0 {
		return time.Duration(input.TTLMinutes) * time.Minute
	}
	if input.Deferred {
		return m.cfg.DeferredReservationTTL()
	}
	return m.cfg.ReservationTTL()
}

func validateReserveInput(input ReserveInput) error {
	if input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	if input.TTLMinutes < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "ttl minutes must not be negative")
	}

	seen := make(map[CounterKey]struct{}, len(input.Items))
	for idx, item := range input.Items {
		if item.VariantID == uuid.Nil || item.SupplierID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: variant and supplier are required", idx)
		}
		if item.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be greater than zero", idx)
		}
		key := item.key(input.StoreID)
		if _, dup := seen[key]; dup {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "item %d: duplicate variant/supplier/origin in request", idx)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func shortfallFor(item ReserveItem, available int, reason string) Shortfall {
	return Shortfall{
		VariantID:  item.VariantID,
		SupplierID: item.SupplierID,
		OriginID:   item.OriginID,
		Requested:  item.Quantity,
		Available:  available,
		Reason:     reason,
	}
}

func translateStockErr(err error, msg string) error {
	if dbpkg.IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
