// Package metrics exposes Prometheus instrumentation for the proxy pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total number of inbound HTTP requests handled by the proxy.",
		},
		[]string{"method", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "proxy_upstream_duration_seconds",
			Help: "Duration of the upstream forwarding call.",
		},
		[]string{"model"},
	)

	SignalComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_computed_total",
			Help: "Total number of signals emitted, by signal type.",
		},
		[]string{"signal_type"},
	)

	SignalConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_confidence",
			Help:    "Confidence of emitted signals.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"signal_type"},
	)

	DecisionSelectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_selected_total",
			Help: "Total number of times a given decision was selected.",
		},
		[]string{"decision"},
	)

	ClassifierCacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classifier_cache_evictions_total",
			Help: "Total number of classifier handle evictions from the bounded cache.",
		},
	)

	ClassifierCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "classifier_completion_duration_seconds",
			Help: "Duration of classifier completion calls.",
		},
		[]string{"model_path"},
	)
)
