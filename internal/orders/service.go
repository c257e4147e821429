package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

// Service drives orders through their lifecycle.
type Service interface {
	TransitionOrder(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	History(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID) ([]models.OrderStatusHistory, error)
}

// ServiceParams bundles the orchestrator dependencies.
type ServiceParams struct {
	Repo          Repository
	DB            dbpkg.TxRunner
	Inventory     ReservationManager
	Ledger        PayoutLedger
	Splitter      PaymentSplitter
	Invoices      InvoiceGenerator
	Publisher     outbox.Publisher
	Audit         auditSink
	Metrics       *metrics.FulfillmentMetrics
	Logger        *logger.Logger
	Config        config.FulfillmentConfig
	RetryAttempts int
}

type service struct {
	repo      Repository
	db        dbpkg.TxRunner
	inventory ReservationManager
	ledger    PayoutLedger
	splitter  PaymentSplitter
	invoices  InvoiceGenerator
	publisher outbox.Publisher
	audit     auditSink
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	cfg       config.FulfillmentConfig
	attempts  int
	now       func() time.Time
}

// NewService builds the lifecycle orchestrator with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("payout ledger required")
	}
	if params.Splitter == nil {
		return nil, fmt.Errorf("payment splitter required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice generator required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit sink required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		inventory: params.Inventory,
		ledger:    params.Ledger,
		splitter:  params.Splitter,
		invoices:  params.Invoices,
		publisher: params.Publisher,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       params.Config,
		attempts:  attempts,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) TransitionOrder(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.ToStatus.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.ToStatus)
	}
	if !input.ActorRole.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown actor role %q", input.ActorRole)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":   input.OrderID.String(),
		"to_status":  input.ToStatus,
		"actor_role": input.ActorRole,
	})

	var (
		result *TransitionResult
		before orderSnapshot
	)
	err := dbpkg.RetryTx(ctx, s.db, s.attempts, func(tx *gorm.DB) error {
		res, snap, err := s.transitionTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result, before = res, snap
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition("", string(input.ToStatus), metrics.ResultFailure)
		if !pkgerrors.Is(err, pkgerrors.CodeInternal) && pkgerrors.As(err) != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order transition rejected")
		} else {
			s.logg.Error(ctx, "order transition failed", err)
		}
		return nil, err
	}

	if !result.Changed {
		s.metrics.ObserveTransition(string(result.FromStatus), string(result.ToStatus), metrics.ResultNoop)
		return result, nil
	}
	s.metrics.ObserveTransition(string(result.FromStatus), string(result.ToStatus), metrics.ResultSuccess)

	if handler, ok := transitionHandlers[input.ToStatus]; ok && handler.afterCommit != nil {
		handler.afterCommit(s, ctx, result.Order, input)
	}
	s.publishTransition(ctx, result, input)
	s.recordTransition(ctx, result, input, before)
	return result, nil
}

func (s *service) transitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, orderSnapshot, error) {
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
	if err == nil {
		err = ownedBy(order, input.StoreID)
	}
	if err != nil {
		return nil, orderSnapshot{}, orderLoadError(err)
	}

	from := order.Status
	if from == input.ToStatus {
		return &TransitionResult{
			Order:       order,
			FromStatus:  from,
			ToStatus:    from,
			SideEffects: []string{},
		}, orderSnapshot{}, nil
	}

	decision := IsTransitionAllowed(from, input.ToStatus, input.ActorRole)
	if !decision.Allowed {
		return nil, orderSnapshot{}, decision.Err
	}

	before := snapshotOf(order)
	tc := &transitionContext{
		tx:      tx,
		repo:    repo,
		order:   order,
		from:    from,
		input:   input,
		now:     s.now(),
		updates: map[string]any{},
		markers: types.Metadata{},
		effects: []string{},
	}

	handler := transitionHandlers[input.ToStatus]
	if handler.precondition != nil {
		if err := handler.precondition(s, ctx, tc); err != nil {
			return nil, orderSnapshot{}, err
		}
	}
	if handler.apply != nil {
		if err := handler.apply(s, ctx, tc); err != nil {
			return nil, orderSnapshot{}, err
		}
	}

	if err := s.persist(ctx, tc); err != nil {
		return nil, orderSnapshot{}, err
	}

	return &TransitionResult{
		Order:       order,
		FromStatus:  from,
		ToStatus:    input.ToStatus,
		SideEffects: tc.effects,
		Changed:     true,
	}, before, nil
}

// persist writes the new status with a compare-and-set on (status, version)
// and appends the history row.
func (s *service) persist(ctx context.Context, tc *transitionContext) error {
	order := tc.order

	lastTransition := map[string]any{
		"from":       tc.from,
		"to":         tc.input.ToStatus,
		"actor_role": tc.input.ActorRole,
		"at":         tc.now.Format(time.RFC3339Nano),
	}
	if tc.input.ActorID != nil {
		lastTransition["actor_id"] = *tc.input.ActorID
	}
	tc.mark(MetaLastTransition, lastTransition)
	metadata := order.Metadata.Clone().Merge(tc.markers)

	tc.updates["status"] = tc.input.ToStatus
	tc.updates["inventory_status"] = order.InventoryStatus
	tc.updates["metadata"] = metadata
	tc.updates["updated_at"] = tc.now

	ok, err := tc.repo.CompareAndSetStatus(ctx, order, tc.from, tc.updates)
	if err != nil {
		if dbpkg.IsSerializationFailure(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "persist order transition")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order transition")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order was modified concurrently")
	}

	order.Status = tc.input.ToStatus
	order.Metadata = metadata
	order.Version++
	order.UpdatedAt = tc.now

	historyMeta := tc.input.Metadata.Clone()
	if len(tc.effects) > 0 {
		historyMeta["side_effects"] = tc.effects
	}
	err = tc.repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:    order.ID,
		StoreID:    order.StoreID,
		FromStatus: tc.from,
		ToStatus:   tc.input.ToStatus,
		ActorRole:  tc.input.ActorRole,
		ActorID:    tc.input.ActorID,
		Metadata:   historyMeta,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}
	return nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID) ([]models.OrderStatusHistory, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err == nil {
		err = ownedBy(order, storeID)
	}
	if err != nil {
		return nil, orderLoadError(err)
	}
	rows, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status history")
	}
	return rows, nil
}

// ownedBy answers orders of other stores the same way as missing ones.
func ownedBy(order *models.Order, storeID *uuid.UUID) error {
	if storeID != nil && order.StoreID != *storeID {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func orderLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func (s *service) publishTransition(ctx context.Context, result *TransitionResult, input TransitionInput) {
	order := result.Order
	storeID := order.StoreID
	err := s.publisher.Publish(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input, &storeID),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			StoreID:     order.StoreID,
			FromStatus:  result.FromStatus,
			ToStatus:    result.ToStatus,
			ActorRole:   input.ActorRole,
			ActorID:     input.ActorID,
			SideEffects: result.SideEffects,
			OccurredAt:  order.UpdatedAt,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "failed to publish order status event", err)
	}
}

func (s *service) recordTransition(ctx context.Context, result *TransitionResult, input TransitionInput, before orderSnapshot) {
	err := s.audit.Log(ctx, audit.Entry{
		StoreID:     result.Order.StoreID,
		EntityType:  audit.EntityOrder,
		EntityID:    result.Order.ID,
		Action:      "order.transition",
		ActorRole:   input.ActorRole,
		ActorID:     input.ActorID,
		Description: fmt.Sprintf("%s -> %s", result.FromStatus, result.ToStatus),
		Before:      before,
		After:       snapshotOf(result.Order),
	})
	if err != nil {
		s.logg.Error(ctx, "failed to write order audit entry", err)
	}
}

func actorRef(input TransitionInput, storeID *uuid.UUID) *outbox.ActorRef {
	ref := &outbox.ActorRef{Role: input.ActorRole, StoreID: storeID}
	if input.ActorID != nil {
		ref.ID = *input.ActorID
	}
	return ref
}
