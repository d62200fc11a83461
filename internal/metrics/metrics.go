// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "folio"

// Metrics groups every collector on a private registry.
// All recording methods are safe on a nil *Metrics so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	syncAttempts    *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	syncItems       *prometheus.CounterVec
	lastSuccess     prometheus.Gauge
	resolverLookups *prometheus.CounterVec
	brokerRequests  *prometheus.CounterVec
	brokerLatency   *prometheus.HistogramVec
}

// New creates a registry with the folio collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "attempts_total",
			Help:      "Sync attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync attempts that reached the broker.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		syncItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Normalized items by kind and result.",
		}, []string{"kind", "result"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed sync.",
		}),
		resolverLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "lookups_total",
			Help:      "Instrument resolver lookups by result (hit, miss, failure).",
		}, []string{"result"}),
		brokerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Broker API requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		brokerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "Broker API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SyncAttempt records the outcome of one trigger
func (m *Metrics) SyncAttempt(trigger, outcome string) {
	if m == nil {
		return
	}
	m.syncAttempts.WithLabelValues(trigger, outcome).Inc()
}

// SyncDuration records how long an attempt ran
func (m *Metrics) SyncDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}

// SyncItems adds n items of a kind with the given result
func (m *Metrics) SyncItems(kind, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.syncItems.WithLabelValues(kind, result).Add(float64(n))
}

// SyncCommitted marks the time of a successful commit
func (m *Metrics) SyncCommitted(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

// ResolverLookup records a resolver cache hit, miss or failure
func (m *Metrics) ResolverLookup(result string) {
	if m == nil {
		return
	}
	m.resolverLookups.WithLabelValues(result).Inc()
}

// BrokerRequest records one broker API call
func (m *Metrics) BrokerRequest(endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.brokerRequests.WithLabelValues(endpoint, status).Inc()
	m.brokerLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}
