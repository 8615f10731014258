package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var OperationResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "reconciler",
	Subsystem: "orchestrator",
	Name:      "operation_results_total",
	Help:      "Counts results of submitted bridge operations.",
}, []string{"operation", "status"})
