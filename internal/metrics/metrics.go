// Package metrics provides Prometheus collectors for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "chatgate"
)

// Chat request outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeUnsupported = "unsupported"
	OutcomeLimited     = "limited"
	OutcomeUpstream    = "upstream_error"
	OutcomeCancelled   = "cancelled"
)

var (
	// Chat pipeline
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat requests",
		},
		[]string{"model", "family", "outcome"},
	)

	ChatStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "stream_duration_seconds",
			Help:      "Duration of the upstream stream in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"family"},
	)

	VisionFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "vision_fallback_total",
			Help:      "Total number of retries on the vision fallback model",
		},
		[]string{"model"},
	)

	AttachmentFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "attachment_failures_total",
			Help:      "Total number of attachments dropped after a resolution failure",
		},
	)

	// Usage accounting
	UsageTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "tokens_total",
			Help:      "Total tokens recorded in the usage ledger",
		},
		[]string{"model", "direction"}, // direction: input/output
	)

	UsageCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "cost_usd_total",
			Help:      "Total cost in USD recorded in the usage ledger",
		},
		[]string{"model"},
	)

	UsageUpdateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "update_failures_total",
			Help:      "Total number of failed usage ledger updates",
		},
	)
)
