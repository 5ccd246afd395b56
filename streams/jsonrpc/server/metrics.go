package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	requests    *prometheus.CounterVec
	published   *prometheus.CounterVec
	resyncs     prometheus.Counter
	subscribers prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "rpc",
			Name:      "published_events_total",
			Help:      "State stream events published, by type.",
		}, []string{"type"}),
		resyncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "rpc",
			Name:      "subscriber_resyncs_total",
			Help:      "Full states sent to subscribers that fell a whole buffer behind.",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "oracle",
			Subsystem: "rpc",
			Name:      "subscribers",
			Help:      "Active state stream subscribers.",
		}),
	}
}

func (m *Metrics) observeRequest(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}
