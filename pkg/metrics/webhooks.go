package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records gateway webhook dispatch outcomes.
type WebhookMetrics struct {
	received *prometheus.CounterVec
	handled  *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received",
		Help: "Webhook events received per event type.",
	}, []string{"event"})
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_handled",
		Help: "Webhook events handled successfully per event type.",
	}, []string{"event"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_skipped",
		Help: "Webhook events whose handler failed, per event type.",
	}, []string{"event"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_dispatch_duration_seconds",
		Help:    "Duration of webhook dispatch in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})
	reg.MustRegister(received, handled, skipped, duration)
	return &WebhookMetrics{
		received: received,
		handled:  handled,
		skipped:  skipped,
		duration: duration,
	}
}

// IncReceived increments the received counter for the event type.
func (m *WebhookMetrics) IncReceived(event string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncHandled increments the handled counter for the event type.
func (m *WebhookMetrics) IncHandled(event string) {
	if m == nil || m.handled == nil {
		return
	}
	m.handled.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncSkipped increments the skipped counter for the event type.
func (m *WebhookMetrics) IncSkipped(event string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(event)).Inc()
}

// ObserveDispatch records the dispatch duration for the event type.
func (m *WebhookMetrics) ObserveDispatch(event string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(event)).Observe(duration.Seconds())
}

func normalizeLabel(event string) string {
	if event == "" {
		return "unknown"
	}
	return event
}
