package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventNotificationRequested,
				AggregateType: enums.AggregatePayment,
				AggregateID:   "pi_" + uuid.NewString(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventNotificationRequested,
				AggregateType: enums.AggregatePayment,
				AggregateID:   "pi_" + uuid.NewString(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType: enums.EventNotificationRequested,
			Topic:     "notification-topic",
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.NotificationRequestedEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestPublishResolvedSetsMessageAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_123",
		DedupeKey:     "stripe:evt_1:payment_receipt",
		Payload:       mustEnvelopePayload(t, "receipt"),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType: enums.EventNotificationRequested,
			Topic:     "notification-topic",
		},
		Envelope: outbox.PayloadEnvelope{
			Version: 1,
			Source:  &outbox.SourceRef{Provider: "stripe", EventID: "evt_1"},
		},
		Payload: &payloads.NotificationRequestedEvent{
			Kind:       enums.NotificationPaymentReceipt,
			CustomerID: "cus_42",
			Recipient:  "buyer@example.com",
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)
	var topics []string
	service.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(topics) != 1 || topics[0] != "notification-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["aggregate_id"] != "pi_123" {
		t.Fatalf("unexpected aggregate id %q", attrs["aggregate_id"])
	}
	if attrs["dedupe_key"] != event.DedupeKey {
		t.Fatalf("unexpected dedupe key %q", attrs["dedupe_key"])
	}
	if attrs["source_event_id"] != "evt_1" || attrs["source_provider"] != "stripe" {
		t.Fatalf("missing source attributes: %v", attrs)
	}
	if attrs["notification_kind"] != "payment_receipt" || attrs["customer_id"] != "cus_42" || attrs["has_recipient"] != "true" {
		t.Fatalf("missing notification attributes: %v", attrs)
	}
	if attrs["schema_version"] != "1" || attrs["outbox_id"] != event.ID.String() {
		t.Fatalf("missing envelope attributes: %v", attrs)
	}
	for _, v := range attrs {
		if strings.Contains(v, "buyer@example.com") {
			t.Fatalf("recipient address leaked into attributes: %v", attrs)
		}
	}
	if !bytes.Equal(pub.messages[0].Data, event.Payload) {
		t.Fatalf("message data should be the stored envelope")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected row to be marked published")
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	base := 100 * time.Millisecond
	if got := nextBackoff(0, base, time.Second); got != 2*base {
		t.Fatalf("unexpected first backoff %v", got)
	}
	if got := nextBackoff(800*time.Millisecond, base, time.Second); got != time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := withJitter(base); got < base || got >= base+jitterWindow {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   "in_123",
		DedupeKey:     "stripe:evt_1:invoice_receipt",
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	registry := &fakeRegistry{err: registry.NewNonRetryableError(enums.OutboxDLQReasonMalformedPayload, errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, registry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMalformedPayload {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   "sub_123",
		DedupeKey:     "stripe:evt_9:subscription_welcome",
		Payload:       mustEnvelopePayload(t, "no-topic"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: enums.EventNotificationRequested, Topic: "missing-topic"},
		Payload:    &payloads.NotificationRequestedEvent{Kind: enums.NotificationSubscriptionWelcome, CustomerID: "cus_1"},
	}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: resolved}, dlqRepo, nil)
	promReg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxPublisherMetrics(promReg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 || dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonTopicUnavailable {
		t.Fatalf("expected topic_unavailable dlq entry, got %+v", dlqRepo.entries)
	}
	if len(repo.published) != 0 {
		t.Fatalf("row must not be marked published")
	}
	if got := counterSum(t, promReg, "outbox_dead_lettered_total"); got != 1 {
		t.Fatalf("expected one dead-lettered row in metrics, got %f", got)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   "in_123",
		DedupeKey:     "stripe:evt_1:invoice_receipt",
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType: enums.EventNotificationRequested,
			Topic:     "notification-topic",
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.NotificationRequestedEvent{},
	}
	registry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, registry, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestRunStopsWhenPubSubIsUnreachable(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	service.pubsub = &fakePubSubClient{pingErr: errors.New("permission denied")}

	err := service.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "pubsub ping failed") {
		t.Fatalf("expected pubsub ping failure, got %v", err)
	}
}

func TestRunReturnsOnCancelWithEmptyOutbox(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestTopicPublishersSkipUnknownTopics(t *testing.T) {
	pubs := &topicPublishers{client: &fakePubSubClient{}, byTopic: map[string]*gcppubsub.Publisher{}}
	if pubs.get("notifications") != nil {
		t.Fatal("expected no publisher when the client has none")
	}
	if len(pubs.byTopic) != 0 {
		t.Fatal("missing publishers must not be cached")
	}
	pubs.stop(context.Background())
}

func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct {
	pingErr error
}

func (f *fakePubSubClient) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
