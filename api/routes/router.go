package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-fulfillment/api/controllers"
	inventorycontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

// Params collects what the HTTP surface needs. Redis doubles as the
// idempotency store and a readiness dependency.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        controllers.Pinger
	Redis     RedisStore
	Inventory inventory.Service
	Orders    orders.Service
	Sweeper   inventorycontrollers.Sweeper
	Gatherer  prometheus.Gatherer
}

// RedisStore is the slice of the redis client the router touches.
type RedisStore interface {
	pkgredis.IdempotencyStore
	controllers.Pinger
}

var (
	operatorRoles    = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem}
	reserveRoles     = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem, enums.ActorRoleVendor, enums.ActorRoleCustomer}
	consumeRoles     = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem, enums.ActorRoleVendor}
	orderActionRoles = []enums.ActorRole{
		enums.ActorRoleAdmin,
		enums.ActorRoleSystem,
		enums.ActorRoleVendor,
		enums.ActorRoleDelivery,
		enums.ActorRoleCustomer,
	}
)

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var deps []controllers.Dependency
	if p.DB != nil {
		deps = append(deps, controllers.Dependency{Name: "postgres", Pinger: p.DB})
	}
	if p.Redis != nil {
		deps = append(deps, controllers.Dependency{Name: "redis", Pinger: p.Redis})
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps...))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var idem pkgredis.IdempotencyStore
	if p.Redis != nil {
		idem = p.Redis
	}
	retryable := middleware.Idempotent(idem, logg, middleware.IdempotencyWindow)
	retryableLong := middleware.Idempotent(idem, logg, middleware.IdempotencyExtendedWindow)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(middleware.RequireRoles(logg, reserveRoles...), retryableLong).
			Post("/reservations", inventorycontrollers.Reserve(p.Inventory, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.With(middleware.RequireRoles(logg, reserveRoles...), retryable).
				Post("/reservations/release", inventorycontrollers.Release(p.Inventory, logg))
			r.With(middleware.RequireRoles(logg, consumeRoles...), retryable).
				Post("/reservations/consume", inventorycontrollers.Consume(p.Inventory, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, orderActionRoles...))
				r.With(retryableLong).Post("/transitions", ordercontrollers.Transition(p.Orders, logg))
				r.Get("/history", ordercontrollers.History(p.Orders, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, operatorRoles...))
			r.With(retryable).Put("/inventory/counters", inventorycontrollers.SetStock(p.Inventory, logg))
			r.Post("/reservations/sweep", inventorycontrollers.Sweep(p.Sweeper, cfg.FeatureFlags.AdminSweepOn, logg))
		})
	})

	return r
}
