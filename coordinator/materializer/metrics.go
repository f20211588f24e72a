package materializer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	announceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "karst_announce_cache_hits_total",
		Help: "Funded feed announce lookups served from the cache.",
	})
	announceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "karst_announce_cache_misses_total",
		Help: "Funded feed announce lookups that went to the database.",
	})
	announceCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "karst_announce_cache_size",
		Help: "Announce metadata entries currently cached.",
	})
)
