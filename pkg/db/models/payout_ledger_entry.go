package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// PayoutLedgerEntry is the payment split owed to a store for an order.
type PayoutLedgerEntry struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	StoreID       uuid.UUID           `gorm:"column:store_id;type:uuid;not null" json:"store_id"`
	PaymentID     string              `gorm:"column:payment_id;not null" json:"payment_id"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Status        enums.PayoutStatus  `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	CreatedBy     enums.ActorRole     `gorm:"column:created_by;type:text;not null" json:"created_by"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PayoutLedgerEntry) TableName() string { return "payout_ledger_entries" }

func (e *PayoutLedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
