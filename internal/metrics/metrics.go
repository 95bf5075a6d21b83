package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry             *prometheus.Registry
	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	discoveryRunsTotal   *prometheus.CounterVec
	discoveryRunDuration prometheus.Histogram
	discoveryEntities    *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP and discovery metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lld",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by core-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lld",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by core-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	discoveryRunsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lld",
		Name:      "discovery_runs_total",
		Help:      "Total number of discovery rule runs processed, by outcome",
	}, []string{"outcome"})

	discoveryRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lld",
		Name:      "discovery_run_duration_seconds",
		Help:      "Duration of discovery rule runs from start to commit",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	discoveryEntities := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lld",
		Name:      "discovered_entities_total",
		Help:      "Discovered items, triggers and graphs by reconciliation outcome",
	}, []string{"kind", "outcome"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		discoveryRunsTotal,
		discoveryRunDuration,
		discoveryEntities,
	)

	return &Metrics{
		registry:             registry,
		httpRequests:         httpRequests,
		httpRequestDuration:  httpRequestDuration,
		discoveryRunsTotal:   discoveryRunsTotal,
		discoveryRunDuration: discoveryRunDuration,
		discoveryEntities:    discoveryEntities,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncDiscoveryRun increments the discovery run counter for outcome
// (succeeded, invalid_payload, failed).
func (m *Metrics) IncDiscoveryRun(outcome string) {
	if m == nil {
		return
	}
	m.discoveryRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDiscoveryRunDuration observes a discovery run duration.
func (m *Metrics) ObserveDiscoveryRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.discoveryRunDuration.Observe(duration.Seconds())
}

// AddDiscoveredEntities adds n to the entity counter for kind and outcome.
func (m *Metrics) AddDiscoveredEntities(kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discoveryEntities.WithLabelValues(kind, outcome).Add(float64(n))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
