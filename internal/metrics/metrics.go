// Package metrics holds the Prometheus collectors of the edge gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Printing

	PrintJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_print_jobs_total",
			Help: "Total number of print attempts by dialect, source and outcome",
		},
		[]string{"dialect", "source", "status"},
	)

	PrintBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_print_bytes_total",
			Help: "Total number of bytes streamed to printers",
		},
	)

	PrintQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_print_queue_depth",
			Help: "Number of print jobs waiting in the durable queue",
		},
	)

	// Discovery

	DiscoveryProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_discovery_probes_total",
			Help: "Total number of TCP discovery probes by result",
		},
		[]string{"result"},
	)

	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edge_discovery_duration_seconds",
			Help:    "Duration of a full subnet discovery sweep",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Outbox

	OutboxEventsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_outbox_events_accepted_total",
			Help: "Total number of events appended to the outbox",
		},
	)

	OutboxEventsPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_outbox_events_pushed_total",
			Help: "Total number of outbox events acknowledged by the cloud",
		},
		[]string{"result"},
	)

	// Cloud

	CloudRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cloud_requests_total",
			Help: "Total number of requests made to the cloud by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_http_requests_total",
			Help: "Total number of HTTP requests served by the gateway",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_http_request_duration_seconds",
			Help:    "Gateway HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)
