package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/kafka"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/migrate"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/registry"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/pubsub"
)

const serviceName = "outbox-publisher"

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
		logg.Error(ctx, "outbox publisher exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	brokerSink, closeSink, err := buildSink(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer closeSink()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	relay, err := NewRelay(RelayParams{
		Config:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		Sink:        brokerSink,
		Events:      outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Registry:    eventRegistry,
		Metrics:     metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}

	ctx = logg.WithField(ctx, "broker", brokerSink.Name())
	listener := metrics.Listen(ctx, logg, cfg.Outbox.MetricsListen, prometheus.DefaultGatherer)
	defer listener.Close()

	logg.Info(ctx, "starting outbox relay")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

func buildSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, func(), error) {
	if cfg.Eventing.UseKafka() {
		producer, err := kafka.NewProducer(cfg.Kafka, logg)
		if err != nil {
			return nil, nil, err
		}
		return &kafkaSink{producer: producer}, func() {
			if err := producer.Close(); err != nil {
				logg.Error(ctx, "error closing kafka producer", err)
			}
		}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, err
	}
	return &pubsubSink{client: client}, func() {
		if err := client.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}, nil
}
