package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Repository defines persistence operations for the order lifecycle tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	CompareAndSetStatus(ctx context.Context, order *models.Order, expected enums.OrderStatus, updates map[string]any) (bool, error)
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
}

// ReservationManager is the tx-level inventory surface the lifecycle drives.
type ReservationManager interface {
	Consume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, storeID *uuid.UUID) (int, error)
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, storeID *uuid.UUID, reason string) (int, error)
}

// PayoutLedger flips payout rows inside the transition's transaction.
type PayoutLedger interface {
	LockPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
	MarkEligible(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
	MarkReversalRequired(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

// PaymentSplitter creates and reverses payment splits after commit.
type PaymentSplitter interface {
	HasPaymentSplit(ctx context.Context, orderID uuid.UUID) (bool, error)
	CreatePaymentSplit(ctx context.Context, input ledger.PaymentSplitInput) (*models.PayoutLedgerEntry, error)
	ReversePaymentSplit(ctx context.Context, orderID uuid.UUID, actorRole enums.ActorRole) (int64, error)
}

// InvoiceGenerator requests invoices for a confirmed order. Idempotent.
type InvoiceGenerator interface {
	GenerateInvoices(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type auditSink interface {
	Log(ctx context.Context, entry audit.Entry) error
}
