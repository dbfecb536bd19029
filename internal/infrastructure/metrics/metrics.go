// Package metrics provides Prometheus metrics for the chat-api service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "jan"
	subsystem = "chat"
)

var (
	// ActiveConnections tracks live websocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_connections",
			Help:      "Number of registered websocket connections",
		},
	)

	// ChannelSubscriptions tracks connection-to-conversation subscriptions.
	ChannelSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_subscriptions",
			Help:      "Number of active conversation channel subscriptions",
		},
	)

	// HandshakesTotal counts websocket handshakes by outcome.
	HandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshakes_total",
			Help:      "Total websocket handshakes by result",
		},
		[]string{"result"},
	)

	// MessagesDispatched counts persisted messages by entry path.
	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dispatched_total",
			Help:      "Total messages persisted by the dispatcher",
		},
		[]string{"path"},
	)

	// DispatchDuration tracks dispatcher operations end to end.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of dispatcher operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "result"},
	)

	// FanoutEvents counts events handed to connections.
	FanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fanout_events_total",
			Help:      "Total events delivered to connection send buffers",
		},
		[]string{"event", "result"},
	)

	// NotificationsEnqueued counts inbox notification hand-offs.
	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inbox_notifications_total",
			Help:      "Total inbox notifications by result",
		},
		[]string{"result"},
	)

	// ReconciledCounters counts unread counters corrected by the reconciliation job.
	ReconciledCounters = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconciled_unread_counters_total",
			Help:      "Total unread counters corrected by reconciliation",
		},
	)

	// HTTPRequests counts REST requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestDuration tracks REST latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordConnectionOpened updates gauges for a newly registered connection.
func RecordConnectionOpened() {
	ActiveConnections.Inc()
	HandshakesTotal.WithLabelValues("accepted").Inc()
}

// RecordConnectionClosed updates gauges for a removed connection.
func RecordConnectionClosed(subscriptions int) {
	ActiveConnections.Dec()
	ChannelSubscriptions.Sub(float64(subscriptions))
}

// RecordHandshakeRejected counts a refused handshake.
func RecordHandshakeRejected(reason string) {
	HandshakesTotal.WithLabelValues(reason).Inc()
}

// RecordDispatch records a dispatcher operation.
func RecordDispatch(operation string, err error, seconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DispatchDuration.WithLabelValues(operation, result).Observe(seconds)
}

// RecordFanout records one event delivery attempt.
func RecordFanout(event string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	FanoutEvents.WithLabelValues(event, result).Inc()
}

// RecordRequest counts a completed HTTP request. A negative duration skips the latency histogram.
func RecordRequest(method, endpoint, status string, seconds float64) {
	HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	if seconds >= 0 {
		HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
	}
}
