package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-fulfillment/api/routes"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/cron"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/invoices"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/migrate"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})
	err = run(ctx, cfg, logg)
	stop()
	if err != nil {
		logg.Error(ctx, "api exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	svc, err := buildServices(cfg, logg, dbClient)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: listenAddr(cfg.App.Port),
		Handler: routes.NewRouter(routes.Params{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Inventory: svc.inventory,
			Orders:    svc.orders,
			Sweeper:   svc.sweeper,
			Gatherer:  prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(logg.WithField(ctx, "addr", server.Addr), logg, server)
}

// serve runs server until ctx ends, then drains in-flight requests.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
		return nil
	})
	return group.Wait()
}

type services struct {
	inventory inventory.Service
	orders    orders.Service
	sweeper   *cron.ReservationSweeper
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*services, error) {
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	publisher, err := outbox.NewTxPublisher(dbClient, outboxService)
	if err != nil {
		return nil, fmt.Errorf("outbox publisher: %w", err)
	}
	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	manager, err := inventory.NewManager(inventoryRepo, cfg.Fulfillment)
	if err != nil {
		return nil, fmt.Errorf("reservation manager: %w", err)
	}
	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:          inventoryRepo,
		Manager:       manager,
		DB:            dbClient,
		Publisher:     publisher,
		Audit:         auditService,
		Metrics:       fulfillmentMetrics,
		Logger:        logg,
		RetryAttempts: cfg.DB.TxRetryAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	invoiceService, err := invoices.NewService(dbClient, outboxService, logg)
	if err != nil {
		return nil, fmt.Errorf("invoice service: %w", err)
	}
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:          orders.NewRepository(dbClient.DB()),
		DB:            dbClient,
		Inventory:     manager,
		Ledger:        ledgerService,
		Splitter:      ledgerService,
		Invoices:      invoiceService,
		Publisher:     publisher,
		Audit:         auditService,
		Metrics:       fulfillmentMetrics,
		Logger:        logg,
		Config:        cfg.Fulfillment,
		RetryAttempts: cfg.DB.TxRetryAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	sweeper, err := cron.NewReservationSweeper(cron.ReservationSweeperParams{
		Logger:    logg,
		Finder:    inventoryRepo,
		Inventory: inventoryService,
		Metrics:   fulfillmentMetrics,
		Config:    cfg.Fulfillment,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation sweeper: %w", err)
	}
	return &services{inventory: inventoryService, orders: ordersService, sweeper: sweeper}, nil
}

// listenAddr prefers the platform-assigned PORT over the configured one.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
