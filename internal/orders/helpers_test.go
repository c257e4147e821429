package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

var testConfig = config.FulfillmentConfig{
	ReservationTTLMinutes:         15,
	DeferredReservationTTLMinutes: 2880,
	DefaultReturnWindowDays:       7,
	SweeperBatchSize:              100,
}

type harness struct {
	db       *gorm.DB
	svc      *service
	repo     Repository
	invRepo  inventory.Repository
	manager  *inventory.Manager
	ledger   ledger.Service
	pub      *recordingPublisher
	audit    *recordingAudit
	invoices *stubInvoices
	splitter *stubSplitter
	store    models.Store
	now      time.Time
}

func newHarness(t *testing.T, overrides ...func(*ServiceParams)) *harness {
	t.Helper()
	conn := dbtest.Open(t,
		&models.Store{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OrderStatusHistory{},
		&models.InventoryCounter{},
		&models.Reservation{},
		&models.PayoutLedgerEntry{},
	)

	invRepo := inventory.NewRepository(conn)
	manager, err := inventory.NewManager(invRepo, testConfig)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)

	window := 7
	store := models.Store{Name: "Green Leaf", ReturnWindowDays: &window}
	require.NoError(t, conn.Create(&store).Error)

	h := &harness{
		db:       conn,
		repo:     NewRepository(conn),
		invRepo:  invRepo,
		manager:  manager,
		ledger:   ledgerSvc,
		pub:      &recordingPublisher{},
		audit:    &recordingAudit{},
		invoices: &stubInvoices{},
		splitter: &stubSplitter{},
		store:    store,
		now:      time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC),
	}

	params := ServiceParams{
		Repo:          h.repo,
		DB:            dbpkg.Wrap(conn),
		Inventory:     manager,
		Ledger:        ledgerSvc,
		Splitter:      h.splitter,
		Invoices:      h.invoices,
		Publisher:     h.pub,
		Audit:         h.audit,
		Metrics:       metrics.NewFulfillmentMetrics(prometheus.NewRegistry()),
		Logger:        logger.Nop(),
		Config:        testConfig,
		RetryAttempts: 2,
	}
	for _, override := range overrides {
		override(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	h.svc = svc.(*service)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) seedOrder(t *testing.T, status enums.OrderStatus, mutate ...func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:     4242,
		StoreID:         h.store.ID,
		Status:          status,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		InventoryStatus: enums.InventoryStatusReserved,
		PaymentMethod:   enums.PaymentMethodCard,
		Subtotal:        decimal.NewFromInt(30),
		TaxAmount:       decimal.NewFromInt(3),
		Total:           decimal.NewFromInt(33),
		Version:         1,
	}
	for _, fn := range mutate {
		fn(order)
	}
	require.NoError(t, h.db.Create(order).Error)
	return order
}

func (h *harness) reserve(t *testing.T, order *models.Order, available, qty int) inventory.CounterKey {
	t.Helper()
	key := inventory.CounterKey{StoreID: order.StoreID, SupplierID: uuid.New(), VariantID: uuid.New()}
	require.NoError(t, h.db.Create(&models.InventoryCounter{
		StoreID: key.StoreID, SupplierID: key.SupplierID, VariantID: key.VariantID,
		TotalStock: available, AvailableStock: available,
	}).Error)
	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.manager.Reserve(context.Background(), tx, inventory.ReserveInput{
			StoreID: order.StoreID,
			OrderID: order.ID,
			Items: []inventory.ReserveItem{{
				VariantID: key.VariantID, SupplierID: key.SupplierID, Quantity: qty,
			}},
		})
		return err
	}))
	return key
}

func (h *harness) counter(t *testing.T, key inventory.CounterKey) models.InventoryCounter {
	t.Helper()
	c, err := h.invRepo.FindCounter(context.Background(), h.db, key)
	require.NoError(t, err)
	require.True(t, c.Balanced(), "counter out of balance: %+v", c)
	return *c
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.repo.FindOrder(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) transition(orderID uuid.UUID, to enums.OrderStatus, role enums.ActorRole, meta map[string]any) (*TransitionResult, error) {
	return h.svc.TransitionOrder(context.Background(), TransitionInput{
		OrderID:   orderID,
		ToStatus:  to,
		ActorRole: role,
		Metadata:  meta,
	})
}

func strPtr(v string) *string { return &v }

func ledgerSplit(order *models.Order) ledger.PaymentSplitInput {
	paymentID := "pay_test"
	if order.PaymentID != nil {
		paymentID = *order.PaymentID
	}
	return ledger.PaymentSplitInput{
		Order:         order,
		PaymentID:     paymentID,
		PaymentMethod: order.PaymentMethod,
		ActorRole:     enums.ActorRoleSystem,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event outbox.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []enums.OutboxEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]enums.OutboxEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingAudit struct {
	entries []audit.Entry
	err     error
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return a.err
}

type stubInvoices struct {
	calls []uuid.UUID
	err   error
}

func (s *stubInvoices) GenerateInvoices(_ context.Context, orderID uuid.UUID) (bool, error) {
	s.calls = append(s.calls, orderID)
	return s.err == nil, s.err
}

type stubSplitter struct {
	exists   bool
	created  []ledger.PaymentSplitInput
	reversed []uuid.UUID
	err      error
}

func (s *stubSplitter) HasPaymentSplit(context.Context, uuid.UUID) (bool, error) {
	return s.exists, nil
}

func (s *stubSplitter) CreatePaymentSplit(_ context.Context, input ledger.PaymentSplitInput) (*models.PayoutLedgerEntry, error) {
	s.created = append(s.created, input)
	if s.err != nil {
		return nil, s.err
	}
	return &models.PayoutLedgerEntry{OrderID: input.Order.ID}, nil
}

func (s *stubSplitter) ReversePaymentSplit(_ context.Context, orderID uuid.UUID, _ enums.ActorRole) (int64, error) {
	s.reversed = append(s.reversed, orderID)
	return 1, s.err
}

type failingLedger struct {
	ledger.Service
}

func (failingLedger) MarkEligible(context.Context, *gorm.DB, uuid.UUID) (int64, error) {
	return 0, errors.New("ledger unavailable")
}
