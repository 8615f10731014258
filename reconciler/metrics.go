package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "poller",
		Name:      "tick_duration_seconds",
		Help:      "Shows durations of a single poller iteration.",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"poller"})

	ProcessedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "poller",
		Name:      "processed_items_total",
		Help:      "Counts bridge transaction legs processed by pollers, by result.",
	}, []string{"poller", "chain_id", "result"})

	FlushedTxns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "persister",
		Name:      "flushed_txns_total",
		Help:      "Counts bridge transaction legs written to the database.",
	}, []string{"status"})
)
