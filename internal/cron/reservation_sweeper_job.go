package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
)

const (
	defaultSweepBatchSize   = 100
	defaultSweepMaxBatches  = 50
	defaultSweepConcurrency = 4
)

type expiredOrderFinder interface {
	ListExpiredOrderIDs(ctx context.Context, storeID *uuid.UUID, now time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error)
}

type reservationReleaser interface {
	ReleaseInventory(ctx context.Context, orderID uuid.UUID, storeID *uuid.UUID, reason string, actor inventory.Actor) (*inventory.ReleaseResult, error)
}

// ReservationSweeperParams configure the expiry sweeper.
type ReservationSweeperParams struct {
	Logger    *logger.Logger
	Finder    expiredOrderFinder
	Inventory reservationReleaser
	Metrics   *metrics.FulfillmentMetrics
	Config    config.FulfillmentConfig
}

// SweepReport summarises one Cleanup call.
type SweepReport struct {
	CleanedCount         int           `json:"cleanedCount"`
	ReleasedReservations int           `json:"releasedReservations"`
	Errors               []error       `json:"-"`
	ErrorMessages        []string      `json:"errors"`
	Duration             time.Duration `json:"-"`
	DurationMs           int64         `json:"durationMs"`
}

// ReservationSweeper releases reservations whose TTL passed without the
// order being confirmed. It is the backstop against abandoned checkouts.
type ReservationSweeper struct {
	logg        *logger.Logger
	finder      expiredOrderFinder
	inventory   reservationReleaser
	metrics     *metrics.FulfillmentMetrics
	batchSize   int
	maxBatches  int
	concurrency int
	now         func() time.Time
}

// NewReservationSweeper builds the sweeper; it doubles as a cron Job.
func NewReservationSweeper(params ReservationSweeperParams) (*ReservationSweeper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("expired reservation finder required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	batchSize := params.Config.SweeperBatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	maxBatches := params.Config.SweeperMaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultSweepMaxBatches
	}
	concurrency := params.Config.SweeperConcurrency
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	return &ReservationSweeper{
		logg:        params.Logger,
		finder:      params.Finder,
		inventory:   params.Inventory,
		metrics:     params.Metrics,
		batchSize:   batchSize,
		maxBatches:  maxBatches,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *ReservationSweeper) Name() string { return "reservation-expiry-sweeper" }

// Run sweeps every store and reports release failures as one combined error.
func (s *ReservationSweeper) Run(ctx context.Context) error {
	report := s.Cleanup(ctx, nil, 0)
	return multierr.Combine(report.Errors...)
}

// Cleanup releases every order holding an expired reservation, optionally
// scoped to one store. A failed order is skipped for the rest of the call so
// one bad row cannot stall the sweep.
func (s *ReservationSweeper) Cleanup(ctx context.Context, storeID *uuid.UUID, batchSize int) SweepReport {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	var (
		report SweepReport
		mu     sync.Mutex
		failed []uuid.UUID
	)
	for batch := 0; batch < s.maxBatches; batch++ {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err())
			break
		}
		orderIDs, err := s.finder.ListExpiredOrderIDs(ctx, storeID, s.now(), batchSize, failed)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("list expired reservations: %w", err))
			break
		}
		if len(orderIDs) == 0 {
			break
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.concurrency)
		for _, orderID := range orderIDs {
			group.Go(func() error {
				res, err := s.inventory.ReleaseInventory(groupCtx, orderID, storeID, inventory.ReleaseReasonExpired, inventory.SystemActor)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = append(failed, orderID)
					report.Errors = append(report.Errors, fmt.Errorf("release order %s: %w", orderID, err))
					return nil
				}
				if res.ReleasedCount > 0 {
					report.CleanedCount++
					report.ReleasedReservations += res.ReleasedCount
				}
				return nil
			})
		}
		_ = group.Wait()

		if len(orderIDs) < batchSize {
			break
		}
	}

	report.Duration = time.Since(start)
	report.DurationMs = report.Duration.Milliseconds()
	for _, err := range report.Errors {
		report.ErrorMessages = append(report.ErrorMessages, err.Error())
	}
	s.metrics.AddSwept(report.CleanedCount)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cleaned_count":         report.CleanedCount,
		"released_reservations": report.ReleasedReservations,
		"error_count":           len(report.Errors),
		"duration_ms":           report.DurationMs,
	})
	if storeID != nil {
		logCtx = s.logg.WithStoreID(logCtx, storeID.String())
	}
	if len(report.Errors) > 0 {
		s.logg.Warn(logCtx, "reservation sweep finished with errors")
	} else {
		s.logg.Info(logCtx, "reservation sweep complete")
	}
	return report
}
