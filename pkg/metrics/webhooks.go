package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks deliveries through the intake pipeline.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	failures   *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook deliveries by terminal pipeline state.",
	}, []string{"provider", "state"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handler_duration_seconds",
		Help:    "Time spent inside webhook handlers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_handler_failures_total",
		Help: "Webhook handler failures by severity.",
	}, []string{"provider", "kind", "severity"})
	reg.MustRegister(deliveries, duration, failures)
	return &WebhookMetrics{
		deliveries: deliveries,
		duration:   duration,
		failures:   failures,
	}
}

// IncDelivery counts a delivery that reached the given state.
func (w *WebhookMetrics) IncDelivery(provider, state string) {
	if w == nil || w.deliveries == nil {
		return
	}
	w.deliveries.WithLabelValues(normalizeLabel(provider), normalizeLabel(state)).Inc()
}

// ObserveHandler records how long a handler ran.
func (w *WebhookMetrics) ObserveHandler(provider, kind string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind)).Observe(duration.Seconds())
}

// IncHandlerFailure counts a handler failure.
func (w *WebhookMetrics) IncHandlerFailure(provider, kind, severity string) {
	if w == nil || w.failures == nil {
		return
	}
	w.failures.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind), normalizeLabel(severity)).Inc()
}
