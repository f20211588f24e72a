package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karst_events_ingested_total",
			Help: "Count of events accepted into the log.",
		},
		[]string{"kind"},
	)
	eventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karst_events_rejected_total",
			Help: "Count of envelopes rejected by ingest.",
		},
		[]string{"code"},
	)
	poolCreditSatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karst_pool_credit_sats_total",
			Help: "Cumulative sats credited to bounty pools by ingest.",
		},
	)
	receiptsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karst_receipts_ingested_total",
			Help: "Count of receipts accepted.",
		},
	)
	receiptsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karst_receipts_duplicate_total",
			Help: "Count of receipts dropped as duplicate payment hashes.",
		},
	)
)
