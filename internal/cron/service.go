package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
)

const defaultInterval = time.Minute

// Periodic is implemented by jobs that should run less often than every
// scheduler cycle.
type Periodic interface {
	Every() time.Duration
}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service ticks at a fixed interval and, while holding the distributed lock,
// runs every job that is due. A failing or panicking job never stops the
// jobs after it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	lastRun  map[string]time.Time
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		lastRun:  map[string]time.Time{},
		now:      time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs the named job under the lock regardless of its cadence.
func (s *Service) RunOnce(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown cron job %q", name)
	}
	var runErr error
	held, err := s.locked(ctx, func() { runErr = s.runJob(ctx, job) })
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("cron lock is held by another worker")
	}
	return runErr
}

// tick runs the due jobs and returns how many ran.
func (s *Service) tick(ctx context.Context) (int, error) {
	ran := 0
	held, err := s.locked(ctx, func() {
		for _, job := range s.registry.Jobs() {
			if ctx.Err() != nil || !s.due(job) {
				continue
			}
			_ = s.runJob(ctx, job)
			ran++
		}
	})
	if err != nil {
		return 0, err
	}
	if !held {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "cron lock held elsewhere; skipping cycle")
	}
	return ran, ctx.Err()
}

func (s *Service) locked(ctx context.Context, fn func()) (bool, error) {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()
	fn()
	return true, nil
}

func (s *Service) due(job Job) bool {
	periodic, ok := job.(Periodic)
	if !ok || periodic.Every() <= 0 {
		return true
	}
	last, seen := s.lastRun[job.Name()]
	return !seen || s.now().Sub(last) >= periodic.Every()
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := s.now()
	outcome := metrics.CronSucceeded

	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.CronPanicked
			err = fmt.Errorf("cron job %s panicked: %v\n%s", job.Name(), r, debug.Stack())
		}
		took := s.now().Sub(start)
		s.lastRun[job.Name()] = start
		s.metrics.ObserveRun(job.Name(), outcome, took)

		logCtx := s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Debug(logCtx, "cron job completed")
	}()

	if err = job.Run(jobCtx); err != nil {
		outcome = metrics.CronFailed
	}
	return err
}
