package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryCounter holds stock for one (store, supplier, origin, variant).
// OriginID is uuid.Nil for a supplier's default stock. After every committed
// operation AvailableStock + ReservedStock == TotalStock and all are >= 0.
type InventoryCounter struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID        uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_inventory_counters_key,priority:1" json:"store_id"`
	SupplierID     uuid.UUID `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_inventory_counters_key,priority:2" json:"supplier_id"`
	OriginID       uuid.UUID `gorm:"column:origin_id;type:uuid;not null;uniqueIndex:ux_inventory_counters_key,priority:3" json:"origin_id"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_inventory_counters_key,priority:4" json:"variant_id"`
	TotalStock     int       `gorm:"column:total_stock;not null;default:0" json:"total_stock"`
	ReservedStock  int       `gorm:"column:reserved_stock;not null;default:0" json:"reserved_stock"`
	AvailableStock int       `gorm:"column:available_stock;not null;default:0" json:"available_stock"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (InventoryCounter) TableName() string { return "inventory_counters" }

func (c *InventoryCounter) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Balanced reports whether the counter satisfies its stock invariant.
func (c InventoryCounter) Balanced() bool {
	return c.AvailableStock >= 0 &&
		c.ReservedStock >= 0 &&
		c.TotalStock >= 0 &&
		c.AvailableStock+c.ReservedStock == c.TotalStock
}
