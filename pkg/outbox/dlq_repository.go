package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// DLQRepository stores outbox rows the relay gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// ParkTx copies event into outbox_dlq with the reason it stopped being
// retried. The caller marks the source row terminal in the same tx.
func (r *DLQRepository) ParkTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("invalid dead-letter reason " + string(reason))
	}
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  truncate(cause),
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt.UTC(),
	}
	return tx.Create(&entry).Error
}

// ListForEvent returns every parked copy of eventID, newest first.
func (r *DLQRepository) ListForEvent(tx *gorm.DB, eventID uuid.UUID) ([]models.OutboxDLQ, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []models.OutboxDLQ
	err := tx.Where("event_id = ?", eventID).Order("failed_at DESC").Find(&rows).Error
	return rows, err
}
