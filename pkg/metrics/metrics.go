// Package metrics defines the Prometheus collectors used by the counter and
// its HTTP and worker surfaces, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of a process.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocumentsTotal       *prometheus.CounterVec
	SegmentsTotal        *prometheus.CounterVec
	WordsTotal           *prometheus.CounterVec
	CharactersTotal      *prometheus.CounterVec
	AnalysisDuration     *prometheus.HistogramVec
	MemoryEntries        prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	WorkerMessagesTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route pattern and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecount_documents_total",
				Help: "Documents analyzed by format and status (ok, unsupported, error).",
			},
			[]string{"format", "status"},
		),
		SegmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecount_segments_total",
				Help: "Segments counted by class (total, repetition, match).",
			},
			[]string{"class"},
		),
		WordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecount_words_total",
				Help: "Words counted by class (total, repetition, match).",
			},
			[]string{"class"},
		),
		CharactersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecount_characters_total",
				Help: "Characters counted by class (total, repetition, match).",
			},
			[]string{"class"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filecount_stage_duration_seconds",
				Help:    "Time spent per pipeline stage (extract, segment, analyze).",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"stage"},
		),
		MemoryEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "filecount_memory_entries",
				Help: "Number of segment identities in the translation memory.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "filecount_cache_hits_total",
				Help: "Total number of analysis cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "filecount_cache_misses_total",
				Help: "Total number of analysis cache misses.",
			},
		),
		WorkerMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecount_worker_messages_total",
				Help: "Analysis requests consumed by the worker by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsTotal,
		m.SegmentsTotal,
		m.WordsTotal,
		m.CharactersTotal,
		m.AnalysisDuration,
		m.MemoryEntries,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.WorkerMessagesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveCounts adds one class of an analysis to the size counters.
func (m *Metrics) ObserveCounts(class string, segments, words, characters int) {
	m.SegmentsTotal.WithLabelValues(class).Add(float64(segments))
	m.WordsTotal.WithLabelValues(class).Add(float64(words))
	m.CharactersTotal.WithLabelValues(class).Add(float64(characters))
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.AnalysisDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
