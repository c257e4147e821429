package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository manages persistence for payout ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.PayoutLedgerEntry) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error)
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.PayoutLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error) {
	var entries []models.PayoutLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count > 0, err
}

// TransitionStatus moves every entry of the order currently in one of from
// to the target status and returns how many rows moved.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Where("order_id = ? AND status IN ?", orderID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}
