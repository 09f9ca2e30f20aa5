// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ClassifierDuration tracks classifier round trips.
	ClassifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_duration_seconds",
			Help:    "Classifier call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 15},
		},
		[]string{"backend", "outcome"},
	)

	// ClassifierFallbacksTotal counts classifications replaced by the fallback response.
	ClassifierFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_fallbacks_total",
			Help: "Classifier calls answered with the fallback response",
		},
		[]string{"backend", "cause"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"platform"},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"platform", "sender"},
	)

	// EscalationsTotal tracks hand-offs to staff.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Conversations escalated to staff",
		},
		[]string{"reason", "priority"},
	)

	// TransitionsTotal tracks conversation status transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Conversation status transitions",
		},
		[]string{"to"},
	)

	// ReviewFlagsTotal tracks messages flagged for labeling review.
	ReviewFlagsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "review_flags_total",
			Help: "User messages flagged for intent review",
		},
	)

	// ChannelDeliveriesTotal tracks outbound deliveries to external channels.
	ChannelDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_deliveries_total",
			Help: "Messages delivered to external channels",
		},
		[]string{"platform", "outcome"},
	)

	// EventsPublishedTotal tracks conversation events published to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation events published",
		},
		[]string{"type", "outcome"},
	)

	// SSEConnections tracks open web reply streams.
	SSEConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE reply streams",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordClassification records a classifier call.
func RecordClassification(backend, outcome string, duration float64) {
	ClassifierDuration.WithLabelValues(backend, outcome).Observe(duration)
	if outcome != "success" {
		ClassifierFallbacksTotal.WithLabelValues(backend, outcome).Inc()
	}
}

// RecordMessage records a persisted message.
func RecordMessage(platform, sender string) {
	MessagesTotal.WithLabelValues(platform, sender).Inc()
}

// RecordEscalation records a hand-off to staff.
func RecordEscalation(reason, priority string) {
	EscalationsTotal.WithLabelValues(reason, priority).Inc()
	TransitionsTotal.WithLabelValues("escalated").Inc()
}

// RecordTransition records a status change other than escalation.
func RecordTransition(to string) {
	TransitionsTotal.WithLabelValues(to).Inc()
}

// RecordDelivery records an outbound channel delivery attempt.
func RecordDelivery(platform string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	ChannelDeliveriesTotal.WithLabelValues(platform, outcome).Inc()
}

// RecordEvent records a conversation event publish attempt.
func RecordEvent(eventType string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection gauge.
func IncrementSSEConnections() {
	SSEConnections.Inc()
}

// DecrementSSEConnections decrements the active SSE connection gauge.
func DecrementSSEConnections() {
	SSEConnections.Dec()
}
