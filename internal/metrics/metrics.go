package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the router's Prometheus collectors: request outcomes by
// route, per-stage latency (classifier/selector/enhancer/registry/dispatch),
// and counts for the two safety-relevant events observability needs to see
// without reading message content — confidential overrides and surfaced
// recommendations.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal            *prometheus.CounterVec
	StageLatency             *prometheus.HistogramVec
	ConfidentialOverridesTotal prometheus.Counter
	RecommendationsTotal     prometheus.Counter
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_requests_total",
			Help: "Total chat requests handled by the router",
		}, []string{"route", "model", "status"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_stage_latency_ms",
			Help:    "Per-stage latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"stage"}),
		ConfidentialOverridesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_confidential_overrides_total",
			Help: "Total requests overridden to the confidential model",
		}),
		RecommendationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_recommendations_total",
			Help: "Total recommendation envelopes returned instead of dispatching",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.StageLatency, m.ConfidentialOverridesTotal, m.RecommendationsTotal)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
