package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// transitionContext carries one attempt of a transition through its handler.
type transitionContext struct {
	tx      *gorm.DB
	repo    Repository
	order   *models.Order
	from    enums.OrderStatus
	input   TransitionInput
	now     time.Time
	updates map[string]any
	markers types.Metadata
	effects []string
}

func (tc *transitionContext) effect(name string) {
	tc.effects = append(tc.effects, name)
}

func (tc *transitionContext) mark(key string, value any) {
	tc.markers[key] = value
}

func (tc *transitionContext) storeID() *uuid.UUID {
	id := tc.order.StoreID
	return &id
}

// transitionHandler is the per-target behavior of the lifecycle. precondition
// and apply run inside the transaction and abort it on error; afterCommit is
// best-effort and only logs.
type transitionHandler struct {
	precondition func(s *service, ctx context.Context, tc *transitionContext) error
	apply        func(s *service, ctx context.Context, tc *transitionContext) error
	afterCommit  func(s *service, ctx context.Context, order *models.Order, input TransitionInput)
}

var transitionHandlers = map[enums.OrderStatus]transitionHandler{
	enums.OrderStatusConfirmed: {
		apply:       (*service).applyConfirmed,
		afterCommit: (*service).afterConfirmed,
	},
	enums.OrderStatusProcessing: {
		precondition: (*service).requireCourier,
	},
	enums.OrderStatusShipped: {
		precondition: (*service).requireShippable,
		apply:        (*service).applyShipped,
	},
	enums.OrderStatusOutForDelivery: {
		apply:       (*service).applyOutForDelivery,
		afterCommit: (*service).afterOutForDelivery,
	},
	enums.OrderStatusDelivered: {
		apply: (*service).applyDelivered,
	},
	enums.OrderStatusCancelled: {
		apply:       (*service).applyCancelled,
		afterCommit: (*service).afterCancelled,
	},
	enums.OrderStatusReturned: {
		precondition: (*service).requireWithinReturnWindow,
		apply:        (*service).applyReturned,
	},
	enums.OrderStatusRefunded: {
		apply: (*service).applyRefunded,
	},
}

func (s *service) applyConfirmed(ctx context.Context, tc *transitionContext) error {
	consumed, err := s.inventory.Consume(ctx, tc.tx, tc.order.ID, tc.storeID())
	if err != nil {
		return err
	}
	if consumed > 0 {
		tc.effect(EffectInventoryConsumed)
		tc.order.InventoryStatus = enums.InventoryStatusConsumed
	}

	locked, err := s.ledger.LockPending(ctx, tc.tx, tc.order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock pending payout")
	}
	if locked > 0 {
		tc.effect(EffectPayoutLocked)
	}

	tc.effect(EffectInvoiceRequested)
	if tc.order.IsPaid() {
		tc.effect(EffectPaymentSplitRequested)
	}
	return nil
}

func (s *service) afterConfirmed(ctx context.Context, order *models.Order, input TransitionInput) {
	if _, err := s.invoices.GenerateInvoices(ctx, order.ID); err != nil {
		s.logg.Error(ctx, "invoice generation failed", err)
	}

	if !order.IsPaid() || order.PaymentID == nil {
		return
	}
	exists, err := s.splitter.HasPaymentSplit(ctx, order.ID)
	if err != nil {
		s.logg.Error(ctx, "payment split lookup failed", err)
		return
	}
	if exists {
		return
	}
	_, err = s.splitter.CreatePaymentSplit(ctx, ledger.PaymentSplitInput{
		Order:         order,
		PaymentID:     *order.PaymentID,
		PaymentMethod: order.PaymentMethod,
		ActorRole:     input.ActorRole,
	})
	if err != nil {
		s.logg.Error(ctx, "payment split creation failed", err)
	}
}

func (s *service) requireCourier(_ context.Context, tc *transitionContext) error {
	if !tc.order.HasCourier() {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "a courier must be assigned before processing")
	}
	return nil
}

func (s *service) requireShippable(ctx context.Context, tc *transitionContext) error {
	if !tc.order.HasCourier() {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "a courier must be assigned before shipping")
	}
	if !tc.order.HasShippingLabel() {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "a shipping label must be generated before shipping")
	}
	if trackingNumber(tc) == "" {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "a tracking number is required to ship")
	}
	return nil
}

func (s *service) applyShipped(_ context.Context, tc *transitionContext) error {
	tracking := trackingNumber(tc)
	if tc.order.TrackingNumber == nil || *tc.order.TrackingNumber != tracking {
		tc.order.TrackingNumber = &tracking
		tc.updates["tracking_number"] = tracking
	}
	tc.effect(EffectTrackingRecorded)
	return nil
}

func (s *service) applyOutForDelivery(_ context.Context, tc *transitionContext) error {
	tc.mark(MetaCustomerNotifyPending, true)
	tc.effect(EffectCustomerNotify)
	return nil
}

func (s *service) afterOutForDelivery(ctx context.Context, order *models.Order, input TransitionInput) {
	storeID := order.StoreID
	err := s.publisher.Publish(ctx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input, &storeID),
		Data: payloads.NotificationRequestedEvent{
			OrderID:  order.ID,
			StoreID:  order.StoreID,
			BuyerID:  order.BuyerID,
			Template: "order_out_for_delivery",
		},
	})
	if err != nil {
		s.logg.Error(ctx, "failed to request customer notification", err)
	}
}

func (s *service) applyDelivered(ctx context.Context, tc *transitionContext) error {
	eligible, err := s.ledger.MarkEligible(ctx, tc.tx, tc.order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout eligible")
	}
	if eligible > 0 {
		tc.effect(EffectPayoutEligible)
	}

	window, err := s.returnWindow(ctx, tc)
	if err != nil {
		return err
	}
	deliveredAt := tc.now
	endsAt := deliveredAt.Add(window)
	tc.order.DeliveredAt = &deliveredAt
	tc.order.ReturnWindowEndsAt = &endsAt
	tc.updates["delivered_at"] = deliveredAt
	tc.updates["return_window_ends_at"] = endsAt
	tc.mark(MetaDeliveredAt, deliveredAt.Format(time.RFC3339))
	tc.mark(MetaReturnWindowEndsAt, endsAt.Format(time.RFC3339))
	tc.effect(EffectReturnWindowStarted)
	return nil
}

func (s *service) applyCancelled(ctx context.Context, tc *transitionContext) error {
	reason := tc.input.Metadata.String(MetaReason)
	if reason == "" {
		reason = inventory.ReleaseReasonCancel
	}

	// Release is keyed on the reservation rows, so a stale inventory_status
	// cannot strand held stock.
	released, err := s.inventory.Release(ctx, tc.tx, tc.order.ID, tc.storeID(), reason)
	if err != nil {
		return err
	}
	if released > 0 {
		tc.effect(EffectInventoryReleased)
		tc.order.InventoryStatus = enums.InventoryStatusReleased
	}

	if tc.order.IsPaid() {
		tc.mark(MetaPaymentReversalRequired, true)
		tc.effect(EffectPaymentReversalRequired)
	}

	cancelledAt := tc.now
	tc.order.CancelledAt = &cancelledAt
	tc.updates["cancelled_at"] = cancelledAt
	tc.mark(MetaCancellationReason, reason)
	return nil
}

func (s *service) afterCancelled(ctx context.Context, order *models.Order, input TransitionInput) {
	if !order.IsPaid() {
		return
	}
	if _, err := s.splitter.ReversePaymentSplit(ctx, order.ID, input.ActorRole); err != nil {
		s.logg.Error(ctx, "payment split reversal failed", err)
	}
}

func (s *service) requireWithinReturnWindow(ctx context.Context, tc *transitionContext) error {
	if tc.order.DeliveredAt == nil {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "order has no delivery time recorded")
	}
	window, err := s.returnWindow(ctx, tc)
	if err != nil {
		return err
	}
	deadline := tc.order.DeliveredAt.Add(window)
	if tc.now.After(deadline) {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "return window has closed").
			WithDetails(map[string]any{"return_window_ended_at": deadline})
	}
	return nil
}

func (s *service) applyReturned(_ context.Context, tc *transitionContext) error {
	tc.mark(MetaReturnInventoryReserved, true)
	tc.mark(MetaRefundProcessStarted, true)
	tc.effect(EffectReturnInventoryReserved)
	tc.effect(EffectRefundProcessStarted)
	return nil
}

func (s *service) applyRefunded(ctx context.Context, tc *transitionContext) error {
	flipped, err := s.ledger.MarkReversalRequired(ctx, tc.tx, tc.order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout reversal")
	}
	if flipped > 0 {
		tc.effect(EffectPayoutReversalRequired)
	}
	tc.mark(MetaCreditNoteRequired, true)
	tc.effect(EffectCreditNoteRequired)
	return nil
}

func (s *service) returnWindow(ctx context.Context, tc *transitionContext) (time.Duration, error) {
	store, err := tc.repo.FindStore(ctx, tc.order.StoreID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return (*models.Store)(nil).ReturnWindow(s.cfg.DefaultReturnWindowDays), nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store settings")
	}
	return store.ReturnWindow(s.cfg.DefaultReturnWindowDays), nil
}

func trackingNumber(tc *transitionContext) string {
	if v := strings.TrimSpace(tc.input.Metadata.String(MetaTrackingNumber)); v != "" {
		return v
	}
	if tc.order.TrackingNumber != nil {
		return strings.TrimSpace(*tc.order.TrackingNumber)
	}
	return ""
}
