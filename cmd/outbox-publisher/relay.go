package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	sendTimeout         = 15 * time.Second
	maxIdleBackoff      = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	ParkTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Sink        sink
	Events      eventStore
	DeadLetters deadLetters
	Registry    resolver
	Metrics     *metrics.RelayMetrics
}

// Relay moves committed outbox rows to the broker. Each batch is claimed and
// settled inside one transaction with SKIP LOCKED, so replicas never relay
// the same row concurrently.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	sink        sink
	events      eventStore
	dead        deadLetters
	registry    resolver
	metrics     *metrics.RelayMetrics
	batchSize   int
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Sink == nil:
		return nil, errors.New("broker sink is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		sink:        p.Sink,
		events:      p.Events,
		dead:        p.DeadLetters,
		registry:    p.Registry,
		metrics:     p.Metrics,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		interval:    time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.interval <= 0 {
		r.interval = defaultPollInterval
	}
	return r, nil
}

// Run polls until ctx ends. A full batch is followed immediately by the next
// one; an empty or failed batch waits, with failures backing off.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.sink.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", r.sink.Name(), err)
	}

	pace := pacer{base: r.interval, max: maxIdleBackoff}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			if err := sleep(ctx, pace.failed()); err != nil {
				return err
			}
		case stats.claimed == r.batchSize:
			pace.reset()
		default:
			pace.reset()
			if err := sleep(ctx, pace.idle()); err != nil {
				return err
			}
		}
	}
}

type batchStats struct {
	claimed  int
	outcomes map[string]int
}

// drain claims one batch and settles every row in it. Only storage errors
// abort the batch; broker failures are recorded per row.
func (r *Relay) drain(ctx context.Context) (batchStats, error) {
	stats := batchStats{outcomes: map[string]int{}}
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		stats.claimed = len(rows)
		for _, row := range rows {
			outcome, err := r.relay(ctx, tx, row)
			if err != nil {
				return err
			}
			stats.outcomes[outcome]++
			r.metrics.ObserveEvent(outcome, string(row.EventType))
		}
		return nil
	})
	r.metrics.ObserveBatch(stats.claimed)
	if err == nil && stats.claimed > 0 {
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
			"claimed":       stats.claimed,
			"published":     stats.outcomes[metrics.RelayPublished],
			"retried":       stats.outcomes[metrics.RelayRetried],
			"dead_lettered": stats.outcomes[metrics.RelayDeadLettered],
		}), "outbox batch settled")
	}
	return stats, err
}

func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
		"broker":        r.sink.Name(),
	})

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return metrics.RelayDeadLettered, r.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = r.logg.WithField(ctx, "topic", resolved.Descriptor.Topic)

	sendErr := r.deliver(ctx, row, resolved)
	if sendErr == nil {
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(ctx, "outbox event published")
		return metrics.RelayPublished, nil
	}

	var permanent registry.NonRetryableError
	if errors.As(sendErr, &permanent) {
		return metrics.RelayDeadLettered, r.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr)
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return metrics.RelayDeadLettered, r.park(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", sendErr))
	}

	r.logg.Warn(r.logg.WithField(ctx, "error", sendErr.Error()), "outbox publish failed, will retry")
	if err := r.events.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return "", fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return metrics.RelayRetried, nil
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if resolved.Descriptor.Topic == "" {
		return registry.NewNonRetryableError(fmt.Errorf("no topic configured for %s", row.EventType))
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return r.sink.Send(sendCtx, outboundMessage{
		Topic:      resolved.Descriptor.Topic,
		Key:        row.AggregateID.String(),
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
	})
}

func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	eventID := resolved.Envelope.EventID
	if eventID == "" {
		eventID = row.ID.String()
	}
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
}

// park dead-letters the row and pins it at maxAttempts so it is never claimed again.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")
	if err := r.dead.ParkTx(tx, row, reason, cause, r.now()); err != nil {
		return fmt.Errorf("park %s: %w", row.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

// pacer doubles the wait after each failed batch up to max and adds up to a
// quarter of the wait as jitter so replicas drift apart.
type pacer struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func (p *pacer) reset() { p.current = 0 }

func (p *pacer) idle() time.Duration { return jitter(p.base) }

func (p *pacer) failed() time.Duration {
	switch {
	case p.current == 0:
		p.current = p.base
	case p.current*2 > p.max:
		p.current = p.max
	default:
		p.current *= 2
	}
	return jitter(p.current)
}

func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
