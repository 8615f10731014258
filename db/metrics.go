package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "Shows durations of database queries, by repository method.",
		Buckets:   []float64{0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	}, []string{"query"})

	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "db",
		Name:      "query_errors_total",
		Help:      "Counts failed database queries, by repository method.",
	}, []string{"query"})
)

// observe starts a timer for the query and returns a func that records its duration and outcome.
func observe(query string) func(err error) error {
	timer := prometheus.NewTimer(QueryDurations.WithLabelValues(query))
	return func(err error) error {
		timer.ObserveDuration()
		if err != nil {
			QueryErrors.WithLabelValues(query).Inc()
		}
		return err
	}
}
