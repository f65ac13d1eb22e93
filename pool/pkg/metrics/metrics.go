package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellspring_pool_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"op", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wellspring_pool_operation_duration_seconds",
			Help:    "Duration of ledger operations, including external transfers",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 0.001s to ~8.2s
		},
		[]string{"op"},
	)

	AmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellspring_pool_amount_total",
			Help: "Total asset units moved by ledger operations",
		},
		[]string{"op", "asset"},
	)

	PeriodsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wellspring_pool_periods_created_total",
			Help: "Total number of periods created, explicitly or by rollover",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellspring_pool_events_published_total",
			Help: "Total number of events published on the bus",
		},
		[]string{"type"},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wellspring_pool_events_dropped_total",
			Help: "Total number of events dropped because a subscriber fell behind",
		},
	)
)

// ObserveOperation records one ledger operation's outcome and duration.
func ObserveOperation(op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
	OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordAmount records asset units moved by a successful operation.
func RecordAmount(op, asset string, amount uint64) {
	AmountTotal.WithLabelValues(op, asset).Add(float64(amount))
}
