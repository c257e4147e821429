package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/audit"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/cron"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/migrate"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.String("once", "", "run a single job by name and exit")
	flag.Parse()

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
	err = run(ctx, cfg, logg, *once)
	stop()
	if err != nil {
		logg.Error(ctx, "cron worker exited", err)
		os.Exit(1)
	}
}

// run wires the worker and blocks until ctx ends, or until the single job
// named by once has finished.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once string) error {
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

	jobs, err := buildJobs(cfg, logg, dbClient, metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if once != "" {
		jobCtx := logg.WithField(ctx, "job", once)
		if err := service.RunOnce(jobCtx, once); err != nil {
			return err
		}
		logg.Info(jobCtx, "one-off cron job complete")
		return nil
	}

	listener := metrics.Listen(ctx, logg, cfg.Cron.MetricsListen, prometheus.DefaultGatherer)
	defer listener.Close()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, fulfillmentMetrics *metrics.FulfillmentMetrics) ([]cron.Job, error) {
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

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
		BatchSize:  cfg.Outbox.RetentionBatch,
		Every:      cfg.Cron.RetentionEvery,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return []cron.Job{sweeper, retention}, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
