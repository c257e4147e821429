package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Service owns the payout ledger rows of an order. The Lock/Mark methods run
// inside the caller's transaction; the split methods open their own.
type Service interface {
	LockPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
	MarkEligible(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
	MarkReversalRequired(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)

	HasPaymentSplit(ctx context.Context, orderID uuid.UUID) (bool, error)
	CreatePaymentSplit(ctx context.Context, input PaymentSplitInput) (*models.PayoutLedgerEntry, error)
	ReversePaymentSplit(ctx context.Context, orderID uuid.UUID, actorRole enums.ActorRole) (int64, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error)
}

// PaymentSplitInput captures what a split needs from the order.
type PaymentSplitInput struct {
	Order         *models.Order
	PaymentID     string
	PaymentMethod enums.PaymentMethod
	ActorRole     enums.ActorRole
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) LockPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return s.transition(ctx, tx, orderID, enums.PayoutStatusLocked, enums.PayoutStatusPending)
}

func (s *service) MarkEligible(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return s.transition(ctx, tx, orderID, enums.PayoutStatusEligible,
		enums.PayoutStatusPending, enums.PayoutStatusLocked)
}

func (s *service) MarkReversalRequired(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return s.transition(ctx, tx, orderID, enums.PayoutStatusReversalRequired,
		enums.PayoutStatusPending, enums.PayoutStatusLocked, enums.PayoutStatusEligible)
}

func (s *service) HasPaymentSplit(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	return s.repo.ExistsForOrder(ctx, orderID)
}

func (s *service) CreatePaymentSplit(ctx context.Context, input PaymentSplitInput) (*models.PayoutLedgerEntry, error) {
	if input.Order == nil || input.Order.ID == uuid.Nil {
		return nil, fmt.Errorf("order is required")
	}
	if input.PaymentID == "" {
		return nil, fmt.Errorf("payment id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, fmt.Errorf("invalid payment method %q", input.PaymentMethod)
	}
	if !input.ActorRole.IsValid() {
		return nil, fmt.Errorf("invalid actor role %q", input.ActorRole)
	}

	existing, err := s.repo.ListByOrderID(ctx, input.Order.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	entry := &models.PayoutLedgerEntry{
		OrderID:       input.Order.ID,
		StoreID:       input.Order.StoreID,
		PaymentID:     input.PaymentID,
		PaymentMethod: input.PaymentMethod,
		Amount:        input.Order.Total,
		Status:        initialStatus(input.Order),
		CreatedBy:     input.ActorRole,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ReversePaymentSplit(ctx context.Context, orderID uuid.UUID, actorRole enums.ActorRole) (int64, error) {
	if !actorRole.IsValid() {
		return 0, fmt.Errorf("invalid actor role %q", actorRole)
	}
	return s.transition(ctx, nil, orderID, enums.PayoutStatusReversed,
		enums.PayoutStatusPending, enums.PayoutStatusLocked, enums.PayoutStatusEligible, enums.PayoutStatusReversalRequired)
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.PayoutStatus, from ...enums.PayoutStatus) (int64, error) {
	if orderID == uuid.Nil {
		return 0, fmt.Errorf("order id is required")
	}
	return s.repo.WithTx(tx).TransitionStatus(ctx, orderID, from, to)
}

// A split created after confirmation is already locked against edits.
func initialStatus(order *models.Order) enums.PayoutStatus {
	switch order.Status {
	case enums.OrderStatusPending, "":
		return enums.PayoutStatusPending
	case enums.OrderStatusDelivered:
		return enums.PayoutStatusEligible
	default:
		return enums.PayoutStatusLocked
	}
}
