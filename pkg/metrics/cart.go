package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dermashop"

// CartMetrics tracks cart mutations and their inventory side effects.
type CartMetrics struct {
	operations   *prometheus.CounterVec
	reservations *prometheus.CounterVec
	lockWait     prometheus.Histogram
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "operations_total",
		Help:      "Cart operations by name and outcome.",
	}, []string{"operation", "outcome"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "inventory_calls_total",
		Help:      "Inventory reserve/release calls issued by the cart.",
	}, []string{"call", "outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for the per-user cart lock.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
	})
	reg.MustRegister(operations, reservations, lockWait)
	return &CartMetrics{
		operations:   operations,
		reservations: reservations,
		lockWait:     lockWait,
	}
}

// ObserveOperation counts one cart operation; a nil err is recorded as ok.
func (c *CartMetrics) ObserveOperation(operation string, err error) {
	if c == nil || c.operations == nil {
		return
	}
	c.operations.WithLabelValues(normalizeLabel(operation), outcome(err)).Inc()
}

// ObserveInventoryCall counts one reserve or release call.
func (c *CartMetrics) ObserveInventoryCall(call string, ok bool) {
	if c == nil || c.reservations == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "refused"
	}
	c.reservations.WithLabelValues(normalizeLabel(call), result).Inc()
}

// ObserveLockWait records how long a caller waited for the cart lock.
func (c *CartMetrics) ObserveLockWait(d time.Duration) {
	if c == nil || c.lockWait == nil {
		return
	}
	c.lockWait.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
