package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

var sweeperConfig = config.FulfillmentConfig{
	ReservationTTLMinutes:         15,
	DeferredReservationTTLMinutes: 2880,
	SweeperBatchSize:              2,
	SweeperMaxBatches:             10,
	SweeperConcurrency:            2,
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, audit.Entry) error { return nil }

type sweepHarness struct {
	repo    inventory.Repository
	svc     inventory.Service
	storeID uuid.UUID
	seed    func(t *testing.T, available int) inventory.CounterKey
	order   func(t *testing.T) uuid.UUID
	counter func(t *testing.T, key inventory.CounterKey) models.InventoryCounter
}

func newSweepHarness(t *testing.T) *sweepHarness {
	t.Helper()
	conn := dbtest.Open(t,
		&models.Order{},
		&models.OrderLineItem{},
		&models.InventoryCounter{},
		&models.Reservation{},
	)
	repo := inventory.NewRepository(conn)
	manager, err := inventory.NewManager(repo, sweeperConfig)
	require.NoError(t, err)
	svc, err := inventory.NewService(inventory.ServiceParams{
		Repo:      repo,
		Manager:   manager,
		DB:        dbpkg.Wrap(conn),
		Publisher: outbox.PublisherFunc(func(context.Context, outbox.DomainEvent) error { return nil }),
		Audit:     nopAudit{},
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)

	h := &sweepHarness{repo: repo, svc: svc, storeID: uuid.New()}
	h.seed = func(t *testing.T, available int) inventory.CounterKey {
		key := inventory.CounterKey{StoreID: h.storeID, SupplierID: uuid.New(), VariantID: uuid.New()}
		require.NoError(t, conn.Create(&models.InventoryCounter{
			StoreID:        key.StoreID,
			SupplierID:     key.SupplierID,
			OriginID:       key.OriginID,
			VariantID:      key.VariantID,
			TotalStock:     available,
			AvailableStock: available,
		}).Error)
		return key
	}
	h.order = func(t *testing.T) uuid.UUID {
		order := models.Order{
			StoreID:         h.storeID,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusUnpaid,
			InventoryStatus: enums.InventoryStatusReserved,
			PaymentMethod:   enums.PaymentMethodCard,
			Subtotal:        decimal.NewFromInt(5),
			TaxAmount:       decimal.Zero,
			Total:           decimal.NewFromInt(5),
			Version:         1,
		}
		require.NoError(t, conn.Create(&order).Error)
		return order.ID
	}
	h.counter = func(t *testing.T, key inventory.CounterKey) models.InventoryCounter {
		c, err := repo.FindCounter(context.Background(), conn, key)
		require.NoError(t, err)
		return *c
	}
	return h
}

func (h *sweepHarness) reserve(t *testing.T, orderID uuid.UUID, key inventory.CounterKey, qty int) {
	t.Helper()
	_, err := h.svc.ReserveInventory(context.Background(), inventory.ReserveInput{
		StoreID: h.storeID,
		OrderID: orderID,
		Items: []inventory.ReserveItem{{
			VariantID:  key.VariantID,
			SupplierID: key.SupplierID,
			OriginID:   key.OriginID,
			Quantity:   qty,
		}},
	}, inventory.SystemActor)
	require.NoError(t, err)
}

func newSweeper(t *testing.T, finder expiredOrderFinder, releaser reservationReleaser, m *metrics.FulfillmentMetrics) *ReservationSweeper {
	t.Helper()
	sweeper, err := NewReservationSweeper(ReservationSweeperParams{
		Logger:    logger.Nop(),
		Finder:    finder,
		Inventory: releaser,
		Metrics:   m,
		Config:    sweeperConfig,
	})
	require.NoError(t, err)
	return sweeper
}

func TestReservationSweeperReleasesExpiredHolds(t *testing.T) {
	h := newSweepHarness(t)
	key := h.seed(t, 10)
	expiredOrders := []uuid.UUID{h.order(t), h.order(t), h.order(t)}
	for _, id := range expiredOrders {
		h.reserve(t, id, key, 2)
	}
	require.Equal(t, 4, h.counter(t, key).AvailableStock)

	m := metrics.NewFulfillmentMetrics(prometheus.NewRegistry())
	sweeper := newSweeper(t, h.repo, h.svc, m)
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }

	report := sweeper.Cleanup(context.Background(), nil, 0)
	require.Empty(t, report.Errors)
	assert.Equal(t, 3, report.CleanedCount)
	assert.Equal(t, 3, report.ReleasedReservations)

	counter := h.counter(t, key)
	assert.Equal(t, 10, counter.AvailableStock)
	assert.Equal(t, 0, counter.ReservedStock)

	for _, id := range expiredOrders {
		rows, err := h.svc.ListReservations(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, enums.ReservationStatusReleased, rows[0].Status)
		require.NotNil(t, rows[0].ReleaseReason)
		assert.Equal(t, inventory.ReleaseReasonExpired, *rows[0].ReleaseReason)
	}

	again := sweeper.Cleanup(context.Background(), nil, 0)
	assert.Zero(t, again.CleanedCount)
}

func TestReservationSweeperLeavesLiveHoldsAlone(t *testing.T) {
	h := newSweepHarness(t)
	key := h.seed(t, 5)
	h.reserve(t, h.order(t), key, 3)

	sweeper := newSweeper(t, h.repo, h.svc, nil)
	report := sweeper.Cleanup(context.Background(), nil, 0)

	require.Empty(t, report.Errors)
	assert.Zero(t, report.CleanedCount)
	assert.Equal(t, 2, h.counter(t, key).AvailableStock)
}

func TestReservationSweeperScopesToStore(t *testing.T) {
	h := newSweepHarness(t)
	key := h.seed(t, 5)
	h.reserve(t, h.order(t), key, 1)

	sweeper := newSweeper(t, h.repo, h.svc, nil)
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }
	other := uuid.New()

	report := sweeper.Cleanup(context.Background(), &other, 10)
	assert.Zero(t, report.CleanedCount)
	assert.Equal(t, 4, h.counter(t, key).AvailableStock)

	report = sweeper.Cleanup(context.Background(), &h.storeID, 10)
	assert.Equal(t, 1, report.CleanedCount)
	assert.Equal(t, 5, h.counter(t, key).AvailableStock)
}

func TestReservationSweeperCollectsFailuresAndContinues(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()
	finder := &fakeExpiredFinder{pending: []uuid.UUID{bad, good}}
	releaser := &fakeReleaser{finder: finder, fail: map[uuid.UUID]bool{bad: true}}

	sweeper := newSweeper(t, finder, releaser, nil)
	report := sweeper.Cleanup(context.Background(), nil, 2)

	require.Len(t, report.Errors, 1)
	assert.ErrorContains(t, report.Errors[0], bad.String())
	assert.Equal(t, 1, report.CleanedCount)
	assert.Len(t, report.ErrorMessages, 1)
	assert.Contains(t, finder.lastExclude, bad)

	err := sweeper.Run(context.Background())
	require.Error(t, err)
}

func TestReservationSweeperStopsAtMaxBatches(t *testing.T) {
	finder := &endlessFinder{}
	sweeper := newSweeper(t, finder, &fakeReleaser{}, nil)
	sweeper.maxBatches = 3

	report := sweeper.Cleanup(context.Background(), nil, 2)
	assert.Equal(t, 3, finder.calls)
	assert.Equal(t, 6, report.CleanedCount)
}

func TestReservationSweeperReportsFinderError(t *testing.T) {
	finder := &fakeExpiredFinder{err: errors.New("db down")}
	sweeper := newSweeper(t, finder, &fakeReleaser{}, nil)

	report := sweeper.Cleanup(context.Background(), nil, 0)
	require.Len(t, report.Errors, 1)
	assert.ErrorContains(t, report.Errors[0], "db down")
}

type fakeExpiredFinder struct {
	mu          sync.Mutex
	pending     []uuid.UUID
	lastExclude []uuid.UUID
	err         error
}

func (f *fakeExpiredFinder) ListExpiredOrderIDs(_ context.Context, _ *uuid.UUID, _ time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastExclude = append([]uuid.UUID(nil), exclude...)
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []uuid.UUID
	for _, id := range f.pending {
		if skip[id] {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeExpiredFinder) drop(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, candidate := range f.pending {
		if candidate == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

type endlessFinder struct {
	mu    sync.Mutex
	calls int
}

func (f *endlessFinder) ListExpiredOrderIDs(_ context.Context, _ *uuid.UUID, _ time.Time, limit int, _ []uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]uuid.UUID, limit)
	for i := range out {
		out[i] = uuid.New()
	}
	return out, nil
}

type fakeReleaser struct {
	finder *fakeExpiredFinder
	fail   map[uuid.UUID]bool
}

func (r *fakeReleaser) ReleaseInventory(_ context.Context, orderID uuid.UUID, _ *uuid.UUID, reason string, _ inventory.Actor) (*inventory.ReleaseResult, error) {
	if r.fail[orderID] {
		return nil, errors.New("release failed")
	}
	if r.finder != nil {
		r.finder.drop(orderID)
	}
	return &inventory.ReleaseResult{OrderID: orderID, Reason: reason, ReleasedCount: 1}, nil
}
