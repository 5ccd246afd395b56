package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is shared by every Pool registered against the same registry;
// series are labelled by pool.
type Metrics struct {
	writes      *prometheus.CounterVec
	noopWrites  *prometheus.CounterVec
	observes    *prometheus.CounterVec
	oldFailures *prometheus.CounterVec
	cardinality *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "pool",
			Name:      "writes_total",
			Help:      "Observations written to the ring.",
		}, []string{"pool"}),
		noopWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "pool",
			Name:      "noop_writes_total",
			Help:      "Writes skipped because an observation already exists for the timestamp.",
		}, []string{"pool"}),
		observes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "pool",
			Name:      "observe_calls_total",
			Help:      "Observe calls served.",
		}, []string{"pool"}),
		oldFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "pool",
			Name:      "observe_old_total",
			Help:      "Observe calls rejected because a target predates the oldest observation.",
		}, []string{"pool"}),
		cardinality: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oracle",
			Subsystem: "pool",
			Name:      "cardinality",
			Help:      "Current number of populated ring slots.",
		}, []string{"pool"}),
	}
}
