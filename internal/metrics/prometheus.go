// Package metrics provides Prometheus metrics for SiliconFlow node executions.
// It tracks processed items, API latency, request payload size and token usage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "sfnodes"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 7.5,
	10.0, 15.0, 20.0, 30.0, 45.0, 60.0, 120.0, 300.0,
}

// PayloadBuckets covers request bodies from small prompts to nine inline images.
var PayloadBuckets = prometheus.ExponentialBuckets(256, 4, 10)

// =============================================================================
// Item Metrics
// =============================================================================

var (
	// ItemsTotal counts processed items by resource and outcome.
	// status is "success" or the error kind.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Total number of processed items",
		},
		[]string{"resource", "status"},
	)

	// BatchesTotal counts Execute calls by outcome ("completed" or "aborted").
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of executed batches",
		},
		[]string{"outcome"},
	)
)

// =============================================================================
// Latency Metrics
// =============================================================================

var (
	// APILatency tracks the duration of one API call, including body read.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_latency_seconds",
			Help:      "SiliconFlow API call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"resource", "model"},
	)

	// RequestPayloadBytes tracks serialized request body sizes.
	RequestPayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_payload_bytes",
			Help:      "Serialized request body size in bytes",
			Buckets:   PayloadBuckets,
		},
		[]string{"resource"},
	)
)

// =============================================================================
// Token Metrics
// =============================================================================

var (
	// TokensTotal counts tokens reported by the API. type is "input" or "output".
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens reported by the API",
		},
		[]string{"resource", "model", "type"},
	)
)
