package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository owns inventory_counters and reservations. Counter mutations are
// single conditional UPDATE statements so concurrent callers never act on a
// stale read.
type Repository interface {
	FindCounter(ctx context.Context, tx *gorm.DB, key CounterKey) (*models.InventoryCounter, error)
	ReserveStock(ctx context.Context, tx *gorm.DB, counterID uuid.UUID, qty int) (bool, error)
	ReleaseStock(ctx context.Context, tx *gorm.DB, counterID uuid.UUID, qty int) (bool, error)
	ConsumeStock(ctx context.Context, tx *gorm.DB, counterID uuid.UUID, qty int) (bool, error)
	UpsertCounter(ctx context.Context, tx *gorm.DB, key CounterKey, available int) (*models.InventoryCounter, error)

	CreateReservation(ctx context.Context, tx *gorm.DB, reservation *models.Reservation) error
	HasActiveReservation(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, key CounterKey) (bool, error)
	ListActiveByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, storeID *uuid.UUID) ([]models.Reservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	MarkReservation(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.ReservationStatus, at time.Time, reason *string) (bool, error)
	ListExpiredOrderIDs(ctx context.Context, storeID *uuid.UUID, now time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error)

	FindOrderStore(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (uuid.UUID, error)
	SetOrderInventoryStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.InventoryStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository. db is used for reads outside a unit of work.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindCounter(ctx context.Context, tx *gorm.DB, key CounterKey) (*models.InventoryCounter, error) {
	var counter models.InventoryCounter
	err := tx.WithContext(ctx).
		Where("store_id = ? AND supplier_id = ? AND origin_id = ? AND variant_id = ?",
			key.StoreID, key.SupplierID, key.OriginID, key.VariantID).
		First(&counter).Error
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func (r *repository) ReserveStock(ctx context.Context, tx *gorm.DB, counterID uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_counters
		SET available_stock = available_stock - ?,
			reserved_stock = reserved_stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_stock >= ?
	`, qty, qty, counterID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseStock(ctx context.Context, tx *gorm.DB, counterID uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_counters
		SET available_stock = available_stock + ?,
			reserved_stock = reserved_stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND reserved_stock >= ?
	`, qty, qty, counterID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ConsumeStock(ctx context.Context, tx *gorm.DB, counterID uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_counters
		SET reserved_stock = reserved_stock - ?,
			total_stock = total_stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND reserved_stock >= ? AND total_stock >= ?
	`, qty, qty, counterID, qty, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpsertCounter(ctx context.Context, tx *gorm.DB, key CounterKey, available int) (*models.InventoryCounter, error) {
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_counters
		SET available_stock = ?,
			total_stock = reserved_stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = ? AND supplier_id = ? AND origin_id = ? AND variant_id = ?
	`, available, available, key.StoreID, key.SupplierID, key.OriginID, key.VariantID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		counter := &models.InventoryCounter{
			StoreID:        key.StoreID,
			SupplierID:     key.SupplierID,
			OriginID:       key.OriginID,
			VariantID:      key.VariantID,
			TotalStock:     available,
			AvailableStock: available,
		}
		if err := tx.WithContext(ctx).Create(counter).Error; err != nil {
			return nil, err
		}
		return counter, nil
	}
	return r.FindCounter(ctx, tx, key)
}

func (r *repository) CreateReservation(ctx context.Context, tx *gorm.DB, reservation *models.Reservation) error {
	return tx.WithContext(ctx).Create(reservation).Error
}

func (r *repository) HasActiveReservation(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, key CounterKey) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("order_id = ? AND variant_id = ? AND supplier_id = ? AND origin_id = ? AND status = ?",
			orderID, key.VariantID, key.SupplierID, key.OriginID, enums.ReservationStatusReserved).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListActiveByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, storeID *uuid.UUID) ([]models.Reservation, error) {
	query := tx.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusReserved)
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	}
	if dbpkg.SupportsRowLocks(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []models.Reservation
	err := query.Order("created_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkReservation(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.ReservationStatus, at time.Time, reason *string) (bool, error) {
	if !status.IsTerminal() {
		return false, errors.New("reservation can only move to a terminal status")
	}
	updates := map[string]any{
		"status":     status,
		"updated_at": at,
	}
	switch status {
	case enums.ReservationStatusConsumed:
		updates["consumed_at"] = at
	case enums.ReservationStatusReleased:
		updates["released_at"] = at
		updates["release_reason"] = reason
	}

	res := tx.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusReserved).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListExpiredOrderIDs(ctx context.Context, storeID *uuid.UUID, now time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Distinct("order_id").
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusReserved, now.UTC())
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	}
	if len(exclude) > 0 {
		query = query.Where("order_id NOT IN ?", exclude)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []uuid.UUID
	if err := query.Order("order_id").Pluck("order_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindOrderStore returns the store that owns the order, or
// gorm.ErrRecordNotFound when there is no such order.
func (r *repository) FindOrderStore(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (uuid.UUID, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Select("id", "store_id").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return uuid.Nil, err
	}
	return order.StoreID, nil
}

func (r *repository) SetOrderInventoryStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.InventoryStatus) error {
	return tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"inventory_status": status,
			"updated_at":       time.Now().UTC(),
		}).Error
}
