// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletreel_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walletreel_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	PipelineResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletreel_pipeline_results_total",
		Help: "Report generation outcomes by status.",
	}, []string{"status"})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletreel_pipeline_duration_seconds",
		Help:    "Time spent fetching activity and generating a report.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "walletreel_queue_active_jobs",
		Help: "Report generation jobs currently queued or running.",
	})

	ExplorerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletreel_explorer_upstream_failures_total",
		Help: "Block explorer calls that failed or returned a non-success status.",
	}, []string{"action"})

	RenderPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletreel_render_polls_total",
		Help: "Progress polls issued against the rendering service.",
	})

	RenderResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletreel_render_results_total",
		Help: "Render job outcomes.",
	}, []string{"status"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
