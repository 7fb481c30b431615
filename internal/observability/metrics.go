// Package observability exposes Prometheus instrumentation for the chat
// service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's collectors. A nil *Metrics is a valid no-op
// receiver so instrumentation stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal         *prometheus.CounterVec
	generationDuration prometheus.Histogram
	queryDuration      prometheus.Histogram
	protocolRestarts   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlchat_turns_total",
			Help: "Completed conversation turns by outcome.",
		}, []string{"outcome"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlchat_generation_duration_seconds",
			Help:    "Latency of text generation calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlchat_query_duration_seconds",
			Help:    "Latency of backend query execution.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		protocolRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlchat_protocol_server_starts_total",
			Help: "Times the protocol server process was started.",
		}),
	}
	registry.MustRegister(m.turnsTotal, m.generationDuration, m.queryDuration, m.protocolRestarts)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generationDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(d.Seconds())
}

func (m *Metrics) ProtocolServerStarted() {
	if m == nil {
		return
	}
	m.protocolRestarts.Inc()
}
