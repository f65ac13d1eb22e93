package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wellspring_indexer_build_info",
			Help: "Build information of the Wellspring event indexer",
		},
		[]string{"version", "commit", "date"},
	)

	// ViewFlushTotal counts flushes by status: "success", "error", or "panic".
	ViewFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellspring_indexer_view_flush_total",
			Help: "Total number of event view flushes",
		},
		[]string{"status"},
	)

	ViewFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wellspring_indexer_view_flush_duration_seconds",
			Help:    "Duration of event view flushes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)

	EventsIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wellspring_indexer_events_indexed_total",
			Help: "Total number of ledger events written to ClickHouse",
		},
		[]string{"type"},
	)

	EventsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wellspring_indexer_events_pending",
			Help: "Number of events buffered and awaiting flush",
		},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wellspring_indexer_events_dropped_total",
			Help: "Total number of events dropped because the flush buffer overflowed",
		},
	)
)
