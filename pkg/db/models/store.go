package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the tenant owning orders and stock. Only the fulfillment settings
// live here.
type Store struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name             string    `gorm:"column:name;not null" json:"name"`
	ReturnWindowDays *int      `gorm:"column:return_window_days" json:"return_window_days"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *Store) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// ReturnWindow resolves the store window, falling back to defaultDays.
func (s *Store) ReturnWindow(defaultDays int) time.Duration {
	days := defaultDays
	if s != nil && s.ReturnWindowDays != nil && *s.ReturnWindowDays >= 0 {
		days = *s.ReturnWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}
