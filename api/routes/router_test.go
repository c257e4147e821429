package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/cron"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	pkgAuth "github.com/angelmondragon/packfinderz-fulfillment/pkg/auth"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type stubInventory struct {
	mu       sync.Mutex
	consumed int
}

func (s *stubInventory) ReserveInventory(_ context.Context, input inventory.ReserveInput, _ inventory.Actor) (*inventory.ReserveResult, error) {
	return &inventory.ReserveResult{OrderID: input.OrderID, ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (s *stubInventory) ReleaseInventory(_ context.Context, orderID uuid.UUID, _ *uuid.UUID, reason string, _ inventory.Actor) (*inventory.ReleaseResult, error) {
	return &inventory.ReleaseResult{OrderID: orderID, Reason: reason}, nil
}

func (s *stubInventory) ConsumeInventory(_ context.Context, orderID uuid.UUID, _ *uuid.UUID, _ inventory.Actor) (*inventory.ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed++
	return &inventory.ConsumeResult{OrderID: orderID, ConsumedCount: 1}, nil
}

func (s *stubInventory) SetStock(_ context.Context, input inventory.SetStockInput, _ inventory.Actor) (*models.InventoryCounter, error) {
	return &models.InventoryCounter{AvailableStock: input.Available}, nil
}

func (s *stubInventory) ListReservations(context.Context, uuid.UUID) ([]models.Reservation, error) {
	return nil, nil
}

type stubOrders struct{}

func (stubOrders) TransitionOrder(context.Context, orders.TransitionInput) (*orders.TransitionResult, error) {
	return &orders.TransitionResult{}, nil
}

func (stubOrders) History(context.Context, uuid.UUID, *uuid.UUID) ([]models.OrderStatusHistory, error) {
	return []models.OrderStatusHistory{}, nil
}

type stubSweeper struct{}

func (stubSweeper) Cleanup(context.Context, *uuid.UUID, int) cron.SweepReport {
	return cron.SweepReport{}
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		FeatureFlags: config.FeatureFlagsConfig{AdminSweepOn: true},
	}
}

func newTestRouter(cfg *config.Config, redisStore RedisStore, inv *stubInventory) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	if inv == nil {
		inv = &stubInventory{}
	}
	return NewRouter(Params{
		Config:    cfg,
		Logger:    logg,
		DB:        stubPinger{},
		Redis:     redisStore,
		Inventory: inv,
		Orders:    stubOrders{},
		Sweeper:   stubSweeper{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole, storeID *uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		ActorID: uuid.New(),
		StoreID: storeID,
		Role:    role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), newMemoryRedis(), nil)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s got %d", path, resp.Code)
		}
	}
}

func TestAPIRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/history", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestConsumeRequiresFulfillmentRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil, nil)
	storeID := uuid.New()
	path := "/api/v1/orders/" + uuid.NewString() + "/reservations/consume"

	customer := httptest.NewRequest(http.MethodPost, path, nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer, &storeID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	vendor := httptest.NewRequest(http.MethodPost, path, nil)
	vendor.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleVendor, &storeID))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, vendor)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for vendor got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGroupRequiresOperatorRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil, nil)
	storeID := uuid.New()

	vendor := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reservations/sweep", nil)
	vendor.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleVendor, &storeID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, vendor)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for vendor got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reservations/sweep", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleAdmin, nil))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHistoryOpenToDeliveryRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/history", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleDelivery, nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestConsumeReplaysIdempotentRetry(t *testing.T) {
	cfg := testConfig()
	inv := &stubInventory{}
	router := newTestRouter(cfg, newMemoryRedis(), inv)
	storeID := uuid.New()
	token := buildToken(t, cfg, enums.ActorRoleVendor, &storeID)
	path := "/api/v1/orders/" + uuid.NewString() + "/reservations/consume"

	missing := httptest.NewRequest(http.MethodPost, path, nil)
	missing.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, missing)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(""))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "consume-1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d: %s", i, resp.Code, resp.Body.String())
		}
		if i == 1 && resp.Header().Get("Idempotent-Replayed") != "true" {
			t.Fatalf("expected replay header on retry")
		}
		bodies = append(bodies, resp.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("replayed body differs: %q vs %q", bodies[0], bodies[1])
	}
	if inv.consumed != 1 {
		t.Fatalf("expected one consume call got %d", inv.consumed)
	}
}
