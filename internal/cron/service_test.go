package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquired bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held || f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	every time.Duration
	runs  int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Every() time.Duration { return j.every }

func (j *testJob) Run(context.Context) error {
	j.runs++
	if j.panic {
		panic("exploded")
	}
	return j.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceTickRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	panicking := &testJob{name: "panicking", panic: true}
	after := &testJob{name: "after"}
	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	svc := newTestService(t, lock, reg, ok, failing, panicking, after)

	ran, err := svc.tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, ran)
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, lock.releases)
	series, err := testutil.GatherAndCount(reg, "fulfillment_cron_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 4, series)
}

func TestServiceTickSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "sweep"}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, &fakeLock{held: true}, reg, job)

	ran, err := svc.tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ran)
	assert.Zero(t, job.runs)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP fulfillment_cron_cycle_skipped_total Scheduler cycles skipped because another worker held the lock.
# TYPE fulfillment_cron_cycle_skipped_total counter
fulfillment_cron_cycle_skipped_total 1
`), "fulfillment_cron_cycle_skipped_total"))
}

func TestServiceTickHonoursJobCadence(t *testing.T) {
	hourly := &testJob{name: "retention", every: time.Hour}
	always := &testJob{name: "sweep"}
	svc := newTestService(t, &fakeLock{}, nil, hourly, always)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.tick(context.Background())
	require.NoError(t, err)
	now = now.Add(10 * time.Minute)
	_, err = svc.tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hourly.runs)
	assert.Equal(t, 2, always.runs)

	now = now.Add(time.Hour)
	_, err = svc.tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, hourly.runs)
}

func TestServiceTickSurfacesLockErrors(t *testing.T) {
	svc := newTestService(t, &fakeLock{err: errors.New("redis down")}, nil, &testJob{name: "sweep"})
	_, err := svc.tick(context.Background())
	require.ErrorContains(t, err, "redis down")
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
}

func TestServiceRunOnce(t *testing.T) {
	sweep := &testJob{name: "sweep", every: time.Hour}
	failing := &testJob{name: "retention", err: errors.New("boom")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, nil, sweep, failing)

	require.NoError(t, svc.RunOnce(context.Background(), "sweep"))
	require.NoError(t, svc.RunOnce(context.Background(), "sweep"))
	assert.Equal(t, 2, sweep.runs)
	assert.Zero(t, failing.runs)

	require.Error(t, svc.RunOnce(context.Background(), "retention"))
	require.ErrorContains(t, svc.RunOnce(context.Background(), "missing"), "unknown cron job")
	assert.Equal(t, 3, lock.releases)

	busy := newTestService(t, &fakeLock{held: true}, nil, sweep)
	require.ErrorContains(t, busy.RunOnce(context.Background(), "sweep"), "held by another worker")
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "sweep"}
	svc := newTestService(t, &fakeLock{}, nil, job)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, svc.Run(ctx), context.DeadlineExceeded)
	assert.GreaterOrEqual(t, job.runs, 1)
}
