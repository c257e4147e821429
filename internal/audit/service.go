package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

const (
	EntityOrder       = "order"
	EntityReservation = "reservation"
)

// Entry is one audit record. Before and After are marshalled as JSON snapshots.
type Entry struct {
	StoreID     uuid.UUID
	EntityType  string
	EntityID    uuid.UUID
	Action      string
	ActorRole   enums.ActorRole
	ActorID     *string
	Description string
	Before      any
	After       any
}

// Service is the audit sink used by the fulfillment core.
type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &Service{repo: repo}, nil
}

func (s *Service) Log(ctx context.Context, entry Entry) error {
	if entry.EntityID == uuid.Nil {
		return fmt.Errorf("audit entity id is required")
	}
	if entry.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	if !entry.ActorRole.IsValid() {
		return fmt.Errorf("invalid audit actor role %q", entry.ActorRole)
	}

	before, err := snapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := snapshot(entry.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	return s.repo.Create(ctx, &models.AuditLog{
		StoreID:     entry.StoreID,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Action:      entry.Action,
		ActorRole:   entry.ActorRole,
		ActorID:     entry.ActorID,
		Description: entry.Description,
		Before:      before,
		After:       after,
	})
}

// List returns the audit trail of an entity, oldest first.
func (s *Service) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
