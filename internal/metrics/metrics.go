// Package metrics exposes Prometheus metrics for palette requests.
//
// Metrics live on their own registry rather than the global default one, so a
// process can build several independent sets (one per server, one per test).
//
//	m := metrics.New()
//	agg, _ := colour.NewAggregator(colour.AggregatorConfig{Observer: m})
//	http.Handle("/metrics", m.Handler())
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedhue"

// Request outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeNoImages = "no_images"
	OutcomeError    = "error"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
	ImagesProcessed prometheus.Counter
	ImagesFailed    prometheus.Counter
	ActiveSessions  prometheus.Gauge
}

// New creates a Metrics set on a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of palette pipeline stages in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of palette requests by outcome",
			},
			[]string{"outcome"},
		),
		ImagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_processed_total",
			Help:      "Total number of images whose colours were extracted",
		}),
		ImagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_failed_total",
			Help:      "Total number of images that could not be downloaded",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of scratch sessions currently on disk",
		}),
	}

	reg.MustRegister(
		m.StageDuration,
		m.Requests,
		m.ImagesProcessed,
		m.ImagesFailed,
		m.ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveImages counts images handed to colour extraction.
func (m *Metrics) ObserveImages(n int) {
	m.ImagesProcessed.Add(float64(n))
}

// ObserveFailedImages counts images that failed to download.
func (m *Metrics) ObserveFailedImages(n int) {
	m.ImagesFailed.Add(float64(n))
}

// RecordRequest counts a finished request by outcome.
func (m *Metrics) RecordRequest(outcome string) {
	m.Requests.WithLabelValues(outcome).Inc()
}

// SetActiveSessions reports the current session count.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
