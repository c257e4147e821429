package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RelayPublished    = "published"
	RelayRetried      = "retried"
	RelayDeadLettered = "dead_lettered"
)

// RelayMetrics tracks how outbox rows leave the table.
type RelayMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

// NewRelayMetrics registers the relay collectors. A nil registerer yields a
// no-op recorder.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox rows handled by the relay, by outcome.",
	}, []string{"outcome", "event_type"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_batch_rows",
		Help:      "Rows claimed per relay batch.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(events, batches)
	return &RelayMetrics{events: events, batches: batches}
}

func (m *RelayMetrics) ObserveEvent(outcome, eventType string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(outcome, normalizeLabel(eventType)).Inc()
}

func (m *RelayMetrics) ObserveBatch(rows int) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(float64(rows))
}
