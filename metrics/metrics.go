// Package metrics holds the Prometheus collectors shared by the dispatch core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_task_transitions_total",
			Help: "Task lifecycle transitions by task type and resulting status",
		},
		[]string{"task_type", "status"},
	)

	RejectedTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_task_rejected_transitions_total",
			Help: "Transitions refused because the task was already terminal",
		},
	)

	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_classifications_total",
			Help: "Classifier outcomes by kind (reply, image, action, error)",
		},
		[]string{"kind"},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_dispatch_total",
			Help: "Dispatch attempts by intent tag and outcome",
		},
		[]string{"intent", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aura_capability_latency_seconds",
			Help:    "Capability provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	Suggestions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_suggestions_total",
			Help: "Suggested tasks created",
		},
	)
)

// Dispatch outcomes.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeUnroutable = "unroutable"
	OutcomeIncomplete = "incomplete"
)

// ObserveTransition counts a task reaching status.
func ObserveTransition(taskType, status string) {
	TaskTransitions.WithLabelValues(taskType, status).Inc()
}

// ObserveDispatch counts a dispatch outcome.
func ObserveDispatch(intent, outcome string) {
	Dispatches.WithLabelValues(intent, outcome).Inc()
}

// ObserveProviderCall records how long a capability call took.
func ObserveProviderCall(intent string, d time.Duration) {
	ProviderLatency.WithLabelValues(intent).Observe(d.Seconds())
}
