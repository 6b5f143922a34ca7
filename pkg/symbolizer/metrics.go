package symbolizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	resolutionsTotal  *prometheus.CounterVec
	strategiesTotal   *prometheus.CounterVec
	corruptTotal      prometheus.Counter
	cacheHitsTotal    prometheus.Counter
	cacheMissesTotal  prometheus.Counter
	symbolizeDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		resolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symtrace",
			Subsystem: "symbolizer",
			Name:      "resolutions_total",
			Help:      "Resolved frames by the precision of their definition reference.",
		}, []string{"outcome"}),
		strategiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symtrace",
			Subsystem: "symbolizer",
			Name:      "strategies_total",
			Help:      "Metadata sources that produced inner frame references.",
		}, []string{"strategy"}),
		corruptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "symtrace",
			Subsystem: "symbolizer",
			Name:      "corrupt_metadata_total",
			Help:      "Addresses degraded to unknown frames because of corrupt metadata.",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "symtrace",
			Subsystem: "symbolizer",
			Name:      "cache_hits_total",
			Help:      "Address lookups served from the frame cache.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "symtrace",
			Subsystem: "symbolizer",
			Name:      "cache_misses_total",
			Help:      "Address lookups resolved against the provider.",
		}),
		symbolizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "symtrace",
			Subsystem: "symbolizer",
			Name:      "symbolize_duration_seconds",
			Help:      "Time spent symbolicating a full trace.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.resolutionsTotal,
			m.strategiesTotal,
			m.corruptTotal,
			m.cacheHitsTotal,
			m.cacheMissesTotal,
			m.symbolizeDuration,
		)
	}
	return m
}

const (
	strategyLineTable = "line_table"
	strategyRootSet   = "root_set"
	strategyModule    = "module"
	strategyProvider  = "provider"
)
