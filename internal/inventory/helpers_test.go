package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

var testFulfillmentConfig = config.FulfillmentConfig{
	ReservationTTLMinutes:         15,
	DeferredReservationTTLMinutes: 2880,
	DefaultReturnWindowDays:       7,
	SweeperBatchSize:              100,
}

type fixture struct {
	db      *gorm.DB
	repo    Repository
	manager *Manager
	storeID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&models.Order{},
		&models.OrderLineItem{},
		&models.InventoryCounter{},
		&models.Reservation{},
		&models.AuditLog{},
	)
	repo := NewRepository(conn)
	manager, err := NewManager(repo, testFulfillmentConfig)
	require.NoError(t, err)
	return &fixture{db: conn, repo: repo, manager: manager, storeID: uuid.New()}
}

func (f *fixture) seedCounter(t *testing.T, available int) CounterKey {
	t.Helper()
	key := CounterKey{StoreID: f.storeID, SupplierID: uuid.New(), OriginID: uuid.Nil, VariantID: uuid.New()}
	require.NoError(t, f.db.Create(&models.InventoryCounter{
		StoreID:        key.StoreID,
		SupplierID:     key.SupplierID,
		OriginID:       key.OriginID,
		VariantID:      key.VariantID,
		TotalStock:     available,
		AvailableStock: available,
	}).Error)
	return key
}

func (f *fixture) seedOrder(t *testing.T) uuid.UUID {
	t.Helper()
	order := models.Order{
		OrderNumber:     1001,
		StoreID:         f.storeID,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		InventoryStatus: enums.InventoryStatusReserved,
		PaymentMethod:   enums.PaymentMethodCard,
		Subtotal:        decimal.NewFromInt(10),
		TaxAmount:       decimal.Zero,
		Total:           decimal.NewFromInt(10),
		Version:         1,
	}
	require.NoError(t, f.db.Create(&order).Error)
	return order.ID
}

func (f *fixture) counter(t *testing.T, key CounterKey) models.InventoryCounter {
	t.Helper()
	c, err := f.repo.FindCounter(context.Background(), f.db, key)
	require.NoError(t, err)
	require.True(t, c.Balanced(), "counter out of balance: %+v", c)
	return *c
}

func (f *fixture) reserve(t *testing.T, orderID uuid.UUID, items ...ReserveItem) ([]models.Reservation, error) {
	t.Helper()
	var out []models.Reservation
	err := f.db.Transaction(func(tx *gorm.DB) error {
		rows, err := f.manager.Reserve(context.Background(), tx, ReserveInput{
			StoreID: f.storeID,
			OrderID: orderID,
			Items:   items,
		})
		out = rows
		return err
	})
	return out, err
}

func itemFor(key CounterKey, qty int) ReserveItem {
	return ReserveItem{VariantID: key.VariantID, SupplierID: key.SupplierID, OriginID: key.OriginID, Quantity: qty}
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
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return a.err
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
