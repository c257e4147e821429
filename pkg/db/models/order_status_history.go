package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// OrderStatusHistory is an append-only transition timeline row.
type OrderStatusHistory struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	StoreID    uuid.UUID         `gorm:"column:store_id;type:uuid;not null" json:"store_id"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;type:text;not null" json:"from_status"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;type:text;not null" json:"to_status"`
	ActorRole  enums.ActorRole   `gorm:"column:actor_role;type:text;not null" json:"actor_role"`
	ActorID    *string           `gorm:"column:actor_id" json:"actor_id"`
	Metadata   types.Metadata    `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
