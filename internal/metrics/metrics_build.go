package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packmill_build_failed_total",
			Help: "Number of times a build has failed, by phase",
		},
		[]string{"target", "phase"},
	)

	BuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packmill_build_count_total",
			Help: "Total number of builds started",
		},
	)

	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "packmill_build_duration_seconds",
			Help:    "Build duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"target"},
	)

	ModulesBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packmill_modules_built_total",
			Help: "Total number of modules resolved and built by the make phase",
		},
		[]string{"target"},
	)

	LastBuildStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "packmill_last_build_start_timestamp",
			Help: "Unix timestamp of when the last build started",
		},
		[]string{"target"},
	)

	LastBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "packmill_last_build_end_timestamp",
			Help: "Unix timestamp of when the last build ended",
		},
		[]string{"target"},
	)

	ResolverCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packmill_resolver_cache_entries",
			Help: "Number of resolver instances cached after the last build",
		},
	)
)
