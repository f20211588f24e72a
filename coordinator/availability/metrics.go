package availability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var spotChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "karst_spot_checks_total",
		Help: "Count of spot check probes by outcome.",
	},
	[]string{"result"},
)
