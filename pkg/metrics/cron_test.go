package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsCountsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "reservation-expiry-sweeper"

	m.ObserveRun(job, CronSucceeded, 250*time.Millisecond)
	m.ObserveRun(job, CronSucceeded, time.Second)
	m.ObserveRun(job, CronFailed, time.Second)
	m.ObserveRun("", CronPanicked, time.Millisecond)
	m.IncSkipped()

	expected := `
# HELP fulfillment_cron_job_runs_total Cron job executions by outcome.
# TYPE fulfillment_cron_job_runs_total counter
fulfillment_cron_job_runs_total{job="reservation-expiry-sweeper",outcome="failed"} 1
fulfillment_cron_job_runs_total{job="reservation-expiry-sweeper",outcome="succeeded"} 2
fulfillment_cron_job_runs_total{job="unknown",outcome="panicked"} 1
# HELP fulfillment_cron_cycle_skipped_total Scheduler cycles skipped because another worker held the lock.
# TYPE fulfillment_cron_cycle_skipped_total counter
fulfillment_cron_cycle_skipped_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"fulfillment_cron_job_runs_total", "fulfillment_cron_cycle_skipped_total"))

	count, err := testutil.GatherAndCount(reg, "fulfillment_cron_job_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilCronJobMetricsIsSafe(t *testing.T) {
	m := NewCronJobMetrics(nil)
	assert.Nil(t, m)
	m.ObserveRun("job", CronSucceeded, time.Second)
	m.IncSkipped()
}
