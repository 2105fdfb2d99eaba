// Package metrics holds the Prometheus collectors for callrisk.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abramin/callrisk/internal/graph"
)

// Namespace prefixes every metric name.
const Namespace = "callrisk"

// Collector holds all Prometheus metrics for the application.
// Each Collector owns its registry, so tests can create as many as they need.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	GraphIngestions *prometheus.CounterVec
	GraphFunctions  prometheus.Gauge
	GraphEdges      prometheus.Gauge
	Vulnerabilities prometheus.Gauge

	AnalysisDuration *prometheus.HistogramVec
	PathsTruncation  prometheus.Counter
}

// New creates a collector registered on a fresh registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GraphIngestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "graph_ingestions_total",
				Help:      "Graph and vulnerability ingestions by result",
			},
			[]string{"kind", "result"},
		),
		GraphFunctions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "graph_functions",
			Help:      "Functions in the current graph",
		}),
		GraphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "graph_edges",
			Help:      "Edges in the current graph",
		}),
		Vulnerabilities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "graph_vulnerabilities",
			Help:      "Vulnerabilities attached to the current graph",
		}),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Analysis duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"analysis"},
		),
		PathsTruncation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "path_enumeration_truncated_total",
			Help:      "Path enumerations cut short by the state budget",
		}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.GraphIngestions,
		c.GraphFunctions,
		c.GraphEdges,
		c.Vulnerabilities,
		c.AnalysisDuration,
		c.PathsTruncation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveAnalysis records the duration of one analysis.
func (c *Collector) ObserveAnalysis(name string, d time.Duration) {
	c.AnalysisDuration.WithLabelValues(name).Observe(d.Seconds())
}

// PathsTruncated counts one truncated path enumeration.
func (c *Collector) PathsTruncated() {
	c.PathsTruncation.Inc()
}

// IngestionResult counts an ingestion attempt of kind ("graph" or "vulnerabilities").
func (c *Collector) IngestionResult(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.GraphIngestions.WithLabelValues(kind, result).Inc()
}

// SetGraph updates the size gauges from store statistics.
func (c *Collector) SetGraph(s graph.Stats) {
	c.GraphFunctions.Set(float64(s.FunctionCount))
	c.GraphEdges.Set(float64(s.EdgeCount))
	c.Vulnerabilities.Set(float64(s.VulnCount))
}
