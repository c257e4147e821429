package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// AuditLog records who changed what, with before/after snapshots.
type AuditLog struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID     uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index" json:"store_id"`
	EntityType  string          `gorm:"column:entity_type;not null" json:"entity_type"`
	EntityID    uuid.UUID       `gorm:"column:entity_id;type:uuid;not null;index" json:"entity_id"`
	Action      string          `gorm:"column:action;not null" json:"action"`
	ActorRole   enums.ActorRole `gorm:"column:actor_role;type:text;not null" json:"actor_role"`
	ActorID     *string         `gorm:"column:actor_id" json:"actor_id"`
	Description string          `gorm:"column:description;not null" json:"description"`
	Before      json.RawMessage `gorm:"column:before_snapshot;type:jsonb" json:"before_snapshot"`
	After       json.RawMessage `gorm:"column:after_snapshot;type:jsonb" json:"after_snapshot"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
