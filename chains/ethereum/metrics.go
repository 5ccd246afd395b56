package ethereum

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type mirrorMetrics struct {
	syncs        *prometheus.CounterVec
	readErrors   *prometheus.CounterVec
	syncDuration prometheus.Histogram
	lastBlock    prometheus.Gauge
}

func newMirrorMetrics(reg prometheus.Registerer) *mirrorMetrics {
	factory := promauto.With(reg)
	return &mirrorMetrics{
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "mirror",
			Name:      "syncs_total",
			Help:      "Mirror sync rounds by outcome.",
		}, []string{"outcome"}),
		readErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "mirror",
			Name:      "pool_read_errors_total",
			Help:      "Failed pool reads or loads.",
		}, []string{"pool"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oracle",
			Subsystem: "mirror",
			Name:      "sync_duration_seconds",
			Help:      "Time taken to read and publish every pool for one block.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "oracle",
			Subsystem: "mirror",
			Name:      "last_synced_block",
			Help:      "Number of the last block published.",
		}),
	}
}
