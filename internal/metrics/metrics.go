// Package metrics exposes questboard instrumentation on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onesmallpr/questboard/internal/models"
)

const namespace = "questboard"

// Metrics holds all collectors. It satisfies the catalog and generator recorders.
type Metrics struct {
	registry *prometheus.Registry

	refreshes           *prometheus.CounterVec
	refreshDuration     prometheus.Histogram
	enrichmentFallbacks prometheus.Counter
	generations         *prometheus.CounterVec
	catalogSize         prometheus.Gauge
	lastRefresh         prometheus.Gauge
	streamClients       prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates and registers all collectors, including Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refreshes_total",
			Help:      "Catalog refresh attempts by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_duration_seconds",
			Help:      "Duration of catalog refresh cycles.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}),
		enrichmentFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_enrichment_fallbacks_total",
			Help:      "Issues that received a fallback enrichment.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Quiz and protocol generations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Number of quests in the committed catalog.",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last committed refresh.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket stream subscribers.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.refreshes,
		m.refreshDuration,
		m.enrichmentFallbacks,
		m.generations,
		m.catalogSize,
		m.lastRefresh,
		m.streamClients,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one refresh attempt
func (m *Metrics) ObserveRefresh(outcome string, elapsed time.Duration) {
	m.refreshes.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
}

// EnrichmentFallback records one fallback enrichment
func (m *Metrics) EnrichmentFallback() {
	m.enrichmentFallbacks.Inc()
}

// ObserveGeneration records one quiz or protocol generation
func (m *Metrics) ObserveGeneration(kind, outcome string) {
	m.generations.WithLabelValues(kind, outcome).Inc()
}

// CatalogCommitted updates catalog gauges; it is registered as a commit hook
func (m *Metrics) CatalogCommitted(snap models.Snapshot) {
	m.catalogSize.Set(float64(len(snap.Quests)))
	m.lastRefresh.Set(float64(snap.LastRefreshedAt.Unix()))
}

// StreamClients sets the number of connected stream subscribers
func (m *Metrics) StreamClients(n int) {
	m.streamClients.Set(float64(n))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
