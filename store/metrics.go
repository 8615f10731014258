package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var StoredTxns = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "reconciler",
	Subsystem: "store",
	Name:      "txns",
	Help:      "Shows the number of bridge transaction legs kept in the store for the particular chain.",
}, []string{"chain_id"})
