package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssetsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packmill_assets_emitted_total",
			Help: "Total number of assets physically written to the output filesystem",
		},
		[]string{"target"},
	)

	AssetsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packmill_assets_skipped_total",
			Help: "Total number of assets skipped because their emitted version was unchanged",
		},
		[]string{"target"},
	)

	AssetEmitFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packmill_asset_emit_failed_total",
			Help: "Total number of asset writes that failed",
		},
		[]string{"target"},
	)

	AssetEmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "packmill_asset_emit_duration_seconds",
			Help:    "Asset emission phase duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		},
		[]string{"target"},
	)
)
