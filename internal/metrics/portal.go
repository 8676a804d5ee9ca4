package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dataset load and export metrics.
var (
	DatasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hazard",
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by outcome",
		},
		[]string{"dataset", "outcome"}, // ok / invalid / error / superseded
	)

	DatasetLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hazard",
			Name:      "dataset_load_duration_seconds",
			Help:      "Dataset query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"dataset"},
	)

	DatasetFeatures = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hazard",
			Name:      "dataset_features",
			Help:      "Features returned per successful load",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"dataset"},
	)

	SnapshotBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hazard",
			Name:      "populate_snapshots_total",
			Help:      "Populate snapshot lookups by source",
		},
		[]string{"source"}, // cache / store
	)

	MapExportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hazard",
			Name:      "map_export_duration_seconds",
			Help:      "Map image export duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		DatasetLoadsTotal, DatasetLoadDuration, DatasetFeatures,
		SnapshotBuildsTotal, MapExportDuration,
	)
}

// ObserveLoad records one dataset load. features is ignored unless outcome
// is "ok".
func ObserveLoad(dataset, outcome string, elapsed time.Duration, features int) {
	DatasetLoadsTotal.WithLabelValues(dataset, outcome).Inc()
	DatasetLoadDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
	if outcome == "ok" {
		DatasetFeatures.WithLabelValues(dataset).Observe(float64(features))
	}
}
