// Package metrics exposes render, sweep and HTTP metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	docrender "github.com/alnah/go-docrender"
)

const namespace = "docrender"

var _ docrender.RenderObserver = (*Collector)(nil)

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	sweeps         *prometheus.CounterVec
	sweptArtifacts prometheus.Counter
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_total",
				Help:      "Total number of recorded renders.",
			},
			[]string{"source", "status"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Render duration in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_sweeps_total",
				Help:      "Total number of artifact garbage collection sweeps.",
			},
			[]string{"result"},
		),
		sweptArtifacts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_removed_total",
				Help:      "Total number of artifacts removed by sweeps.",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "code"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.renders,
		c.renderDuration,
		c.sweeps,
		c.sweptArtifacts,
		c.requests,
		c.requestLatency,
	)
	return c
}

// ObserveRender implements docrender.RenderObserver.
func (c *Collector) ObserveRender(source docrender.RenderSource, status docrender.RenderStatus, elapsed time.Duration) {
	c.renders.WithLabelValues(string(source), string(status)).Inc()
	c.renderDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// ObserveSweep records one artifact sweep.
func (c *Collector) ObserveSweep(removed int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.sweeps.WithLabelValues(result).Inc()
	c.sweptArtifacts.Add(float64(removed))
}

// ObserveRequest records one HTTP request. route is the route pattern,
// never the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.requestLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
