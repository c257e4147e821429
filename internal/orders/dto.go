package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Metadata keys read from transition requests or stashed on the order.
const (
	MetaTrackingNumber          = "tracking_number"
	MetaReason                  = "reason"
	MetaLastTransition          = "last_transition"
	MetaCancellationReason      = "cancellation_reason"
	MetaCustomerNotifyPending   = "customer_notify_pending"
	MetaPaymentReversalRequired = "payment_reversal_required"
	MetaReturnInventoryReserved = "return_inventory_reserved"
	MetaRefundProcessStarted    = "refund_process_started"
	MetaCreditNoteRequired      = "credit_note_required"
	MetaDeliveredAt             = "delivered_at"
	MetaReturnWindowEndsAt      = "return_window_ends_at"
)

// Side effect labels reported on TransitionResult and the lifecycle event.
const (
	EffectInventoryConsumed       = "inventory_consumed"
	EffectInventoryReleased       = "inventory_released"
	EffectPayoutLocked            = "payout_ledger_locked"
	EffectPayoutEligible          = "payout_ledger_eligible"
	EffectPayoutReversalRequired  = "payout_ledger_reversal_required"
	EffectInvoiceRequested        = "invoice_generation_requested"
	EffectPaymentSplitRequested   = "payment_split_requested"
	EffectPaymentReversalRequired = "payment_reversal_required"
	EffectCustomerNotify          = "customer_notify_pending"
	EffectTrackingRecorded        = "tracking_number_recorded"
	EffectReturnWindowStarted     = "return_window_started"
	EffectReturnInventoryReserved = "return_inventory_reserved"
	EffectRefundProcessStarted    = "refund_process_started"
	EffectCreditNoteRequired      = "credit_note_required"
)

// TransitionInput asks the orchestrator to move an order. A non-nil StoreID
// confines the call to orders of that store.
type TransitionInput struct {
	OrderID   uuid.UUID
	StoreID   *uuid.UUID
	ToStatus  enums.OrderStatus
	ActorRole enums.ActorRole
	ActorID   *string
	Metadata  types.Metadata
}

// TransitionResult reports a committed (or no-op) transition. Changed is false
// when the order already had the requested status.
type TransitionResult struct {
	Order       *models.Order     `json:"order"`
	FromStatus  enums.OrderStatus `json:"from_status"`
	ToStatus    enums.OrderStatus `json:"to_status"`
	SideEffects []string          `json:"side_effects"`
	Changed     bool              `json:"changed"`
}

// orderSnapshot is the audit view of an order.
type orderSnapshot struct {
	Status          enums.OrderStatus     `json:"status"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	InventoryStatus enums.InventoryStatus `json:"inventory_status"`
	TrackingNumber  *string               `json:"tracking_number,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	Version         int                   `json:"version"`
	Metadata        types.Metadata        `json:"metadata,omitempty"`
}

func snapshotOf(order *models.Order) orderSnapshot {
	return orderSnapshot{
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		InventoryStatus: order.InventoryStatus,
		TrackingNumber:  order.TrackingNumber,
		DeliveredAt:     order.DeliveredAt,
		Version:         order.Version,
		Metadata:        order.Metadata.Clone(),
	}
}
