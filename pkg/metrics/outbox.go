package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxPublisherMetrics tracks notification delivery from the outbox to
// Pub/Sub.
type OutboxPublisherMetrics struct {
	published    *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

func NewOutboxPublisherMetrics(reg prometheus.Registerer) *OutboxPublisherMetrics {
	if reg == nil {
		return &OutboxPublisherMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows acknowledged by Pub/Sub, by topic and notification kind.",
	}, []string{"topic", "kind"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_retries_total",
		Help: "Publish failures left for a later attempt.",
	}, []string{"topic"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox rows moved to the DLQ, by reason.",
	}, []string{"reason"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Time from Publish to server acknowledgement.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	reg.MustRegister(published, retried, deadLettered, latency)
	return &OutboxPublisherMetrics{
		published:    published,
		retried:      retried,
		deadLettered: deadLettered,
		latency:      latency,
	}
}

func (m *OutboxPublisherMetrics) ObservePublished(topic, kind string, took time.Duration) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(topic), normalizeLabel(kind)).Inc()
	m.latency.WithLabelValues(normalizeLabel(topic)).Observe(took.Seconds())
}

func (m *OutboxPublisherMetrics) IncRetried(topic string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *OutboxPublisherMetrics) IncDeadLettered(reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(reason)).Inc()
}
