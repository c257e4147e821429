package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// OrderStatusChangedEvent is emitted after a lifecycle transition commits.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id" validate:"required"`
	OrderNumber int64             `json:"order_number"`
	StoreID     uuid.UUID         `json:"store_id"`
	FromStatus  enums.OrderStatus `json:"from_status"`
	ToStatus    enums.OrderStatus `json:"to_status" validate:"required"`
	ActorRole   enums.ActorRole   `json:"actor_role"`
	ActorID     *string           `json:"actor_id,omitempty"`
	SideEffects []string          `json:"side_effects,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// ReservationLine describes one held counter in inventory events.
type ReservationLine struct {
	ReservationID uuid.UUID `json:"reservation_id" validate:"required"`
	VariantID     uuid.UUID `json:"variant_id" validate:"required"`
	SupplierID    uuid.UUID `json:"supplier_id"`
	OriginID      uuid.UUID `json:"origin_id"`
	Quantity      int       `json:"quantity" validate:"gt=0"`
}

// InventoryReservedEvent is emitted after a reservation batch commits.
type InventoryReservedEvent struct {
	OrderID   uuid.UUID         `json:"order_id" validate:"required"`
	StoreID   uuid.UUID         `json:"store_id" validate:"required"`
	ExpiresAt time.Time         `json:"expires_at"`
	Lines     []ReservationLine `json:"lines" validate:"min=1,dive"`
}

// InventoryReleasedEvent is emitted when held stock goes back to available.
type InventoryReleasedEvent struct {
	OrderID       uuid.UUID  `json:"order_id" validate:"required"`
	StoreID       *uuid.UUID `json:"store_id,omitempty"`
	Reason        string     `json:"reason" validate:"required"`
	ReleasedCount int        `json:"released_count"`
}

// InventoryConsumedEvent is emitted when held stock leaves inventory.
type InventoryConsumedEvent struct {
	OrderID       uuid.UUID  `json:"order_id" validate:"required"`
	StoreID       *uuid.UUID `json:"store_id,omitempty"`
	ConsumedCount int        `json:"consumed_count"`
}

// InvoiceRequestedEvent asks the billing side to render invoices.
type InvoiceRequestedEvent struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	OrderNumber int64     `json:"order_number"`
	StoreID     uuid.UUID `json:"store_id" validate:"required"`
	Total       string    `json:"total" validate:"required"`
}

// NotificationRequestedEvent asks the messaging side to notify a customer.
type NotificationRequestedEvent struct {
	OrderID  uuid.UUID  `json:"order_id" validate:"required"`
	StoreID  uuid.UUID  `json:"store_id"`
	BuyerID  *uuid.UUID `json:"buyer_id,omitempty"`
	Template string     `json:"template" validate:"required"`
}
