package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	epochsSettledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karst_epochs_settled_total",
			Help: "Count of epochs settled by the scheduler.",
		},
	)
	lastSettledEpochGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "karst_last_settled_epoch",
			Help: "Most recent epoch the scheduler settled.",
		},
	)
)
