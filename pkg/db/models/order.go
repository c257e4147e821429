package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Order is the lifecycle aggregate. Status only changes through the
// transition orchestrator.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber        int64                 `gorm:"column:order_number;not null" json:"order_number"`
	StoreID            uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index" json:"store_id"`
	BuyerID            *uuid.UUID            `gorm:"column:buyer_id;type:uuid" json:"buyer_id"`
	Status             enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	PaymentStatus      enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null;default:'unpaid'" json:"payment_status"`
	InventoryStatus    enums.InventoryStatus `gorm:"column:inventory_status;type:text;not null;default:'reserved'" json:"inventory_status"`
	PaymentMethod      enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	PaymentID          *string               `gorm:"column:payment_id" json:"payment_id"`
	CourierID          *string               `gorm:"column:courier_id" json:"courier_id"`
	ShippingLabelURL   *string               `gorm:"column:shipping_label_url" json:"shipping_label_url"`
	TrackingNumber     *string               `gorm:"column:tracking_number" json:"tracking_number"`
	Subtotal           decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount          decimal.Decimal       `gorm:"column:tax_amount;type:numeric(12,2);not null" json:"tax_amount"`
	Total              decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	Metadata           types.Metadata        `gorm:"column:metadata;type:jsonb" json:"metadata"`
	DeliveredAt        *time.Time            `gorm:"column:delivered_at" json:"delivered_at"`
	ReturnWindowEndsAt *time.Time            `gorm:"column:return_window_ends_at" json:"return_window_ends_at"`
	CancelledAt        *time.Time            `gorm:"column:cancelled_at" json:"cancelled_at"`
	Version            int                   `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID;references:ID" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsPaid reports whether money has been captured for the order.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == enums.PaymentStatusPaid
}

// HasCourier reports whether a courier has been assigned.
func (o *Order) HasCourier() bool {
	return o.CourierID != nil && *o.CourierID != ""
}

// HasShippingLabel reports whether a label has been generated.
func (o *Order) HasShippingLabel() bool {
	return o.ShippingLabelURL != nil && *o.ShippingLabelURL != ""
}
