// infrastructure/prometheus_metrics.go
package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitovidale/clip-processor-service/domain"
)

// PrometheusMetrics implements domain.PipelineMetrics on its own registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	stepDuration *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	cacheBytes   prometheus.Counter
	clips        *prometheus.CounterVec
	refinements  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clip_processor",
			Name:      "pipeline_step_duration_seconds",
			Help:      "Duration of pipeline steps by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"step", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clip_processor",
			Name:      "cache_lookups_total",
			Help:      "Temporary cache lookups by result.",
		}, []string{"result"}),
		cacheBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clip_processor",
			Name:      "cache_transferred_bytes_total",
			Help:      "Bytes transferred from the file host into the cache.",
		}),
		clips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clip_processor",
			Name:      "clips_total",
			Help:      "Clips reaching a terminal status.",
		}, []string{"status"}),
		refinements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clip_processor",
			Name:      "refinements_total",
			Help:      "Transcript refinement attempts by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clip_processor",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}
	m.registry.MustRegister(
		m.stepDuration, m.cacheLookups, m.cacheBytes, m.clips, m.refinements, m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) ObserveStep(step, outcome string, d time.Duration) {
	m.stepDuration.WithLabelValues(step, outcome).Observe(d.Seconds())
}

func (m *PrometheusMetrics) CacheResult(hit bool, bytes int64) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.cacheBytes.Add(float64(bytes))
	}
}

func (m *PrometheusMetrics) ClipOutcome(status domain.ClipStatus) {
	m.clips.WithLabelValues(string(status)).Inc()
}

func (m *PrometheusMetrics) RefinementOutcome(outcome string) {
	m.refinements.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) ObserveHTTP(method, route string, code int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
