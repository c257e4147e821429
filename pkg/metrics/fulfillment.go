package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fulfillment"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultNoop    = "noop"
)

// FulfillmentMetrics counts lifecycle transitions and inventory operations.
type FulfillmentMetrics struct {
	transitions *prometheus.CounterVec
	inventory   *prometheus.CounterVec
	units       *prometheus.CounterVec
	swept       prometheus.Counter
}

// NewFulfillmentMetrics registers the collectors on reg. A nil registerer
// yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by source, target and outcome.",
	}, []string{"from", "to", "result"})
	inventory := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_operations_total",
		Help:      "Reservation manager operations by outcome.",
	}, []string{"operation", "result"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_units_total",
		Help:      "Stock units moved by reservation manager operations.",
	}, []string{"operation"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservations_swept_total",
		Help:      "Orders whose expired reservations were released by the sweeper.",
	})
	reg.MustRegister(transitions, inventory, units, swept)
	return &FulfillmentMetrics{
		transitions: transitions,
		inventory:   inventory,
		units:       units,
		swept:       swept,
	}
}

func (m *FulfillmentMetrics) ObserveTransition(from, to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), result).Inc()
}

func (m *FulfillmentMetrics) ObserveInventory(operation, result string, units int) {
	if m == nil || m.inventory == nil {
		return
	}
	m.inventory.WithLabelValues(operation, result).Inc()
	if units > 0 {
		m.units.WithLabelValues(operation).Add(float64(units))
	}
}

func (m *FulfillmentMetrics) AddSwept(orders int) {
	if m == nil || m.swept == nil || orders <= 0 {
		return
	}
	m.swept.Add(float64(orders))
}
