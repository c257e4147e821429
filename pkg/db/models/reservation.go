package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Reservation holds Quantity units of one counter for one order. CounterID
// pins the exact stock row so release and consume restore the origin the
// units were taken from.
type Reservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID       uuid.UUID               `gorm:"column:store_id;type:uuid;not null;index" json:"store_id"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	CounterID     uuid.UUID               `gorm:"column:counter_id;type:uuid;not null" json:"counter_id"`
	VariantID     uuid.UUID               `gorm:"column:variant_id;type:uuid;not null" json:"variant_id"`
	SupplierID    uuid.UUID               `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	OriginID      uuid.UUID               `gorm:"column:origin_id;type:uuid;not null" json:"origin_id"`
	Quantity      int                     `gorm:"column:quantity;not null" json:"quantity"`
	Status        enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'reserved';index" json:"status"`
	ExpiresAt     time.Time               `gorm:"column:expires_at;not null;index" json:"expires_at"`
	ReservedAt    time.Time               `gorm:"column:reserved_at;not null" json:"reserved_at"`
	ConsumedAt    *time.Time              `gorm:"column:consumed_at" json:"consumed_at"`
	ReleasedAt    *time.Time              `gorm:"column:released_at" json:"released_at"`
	ReleaseReason *string                 `gorm:"column:release_reason" json:"release_reason"`
	Metadata      types.Metadata          `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
