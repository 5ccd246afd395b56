package differ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	diffDuration *prometheus.HistogramVec
	slotsChanged prometheus.Counter
	poolsChanged prometheus.Counter
}

// NewMetrics registers the differ's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		diffDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oracle",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time taken to diff two states.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{}),
		slotsChanged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "differ",
			Name:      "slots_changed_total",
			Help:      "Oracle slots updated or deleted across all diffs.",
		}),
		poolsChanged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "differ",
			Name:      "pools_changed_total",
			Help:      "Pools carried in diffs, including additions.",
		}),
	}
}
