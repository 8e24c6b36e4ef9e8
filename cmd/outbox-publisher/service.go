package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	flushTimeout          = 10 * time.Second
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxPublisherMetrics
	PublisherFactory publisherFactory
}

// Service drains notification rows from the outbox into Pub/Sub. Each batch
// runs in one transaction, so a crash between publish and mark leads to a
// redelivery that subscribers drop by dedupe_key.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	registry         registryResolver
	dlq              dlqRepository
	metrics          *metrics.OutboxPublisherMetrics
	publishers       *topicPublishers
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox repository", params.Repository == nil},
		{"event registry", params.Registry == nil},
		{"dlq repository", params.DLQRepository == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}
	s.publisherFactory = params.PublisherFactory
	if s.publisherFactory == nil {
		s.publishers = &topicPublishers{client: params.PubSub, byTopic: map[string]*gcppubsub.Publisher{}}
		s.publisherFactory = s.publishers.get
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run publishes until ctx ends. Full batches are followed immediately by the
// next one; an empty outbox waits a poll interval, and batch errors back off
// up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer s.flush(ctx)

	wait := s.pollInterval
	for {
		processed, err := s.processBatch(ctx)
		switch {
		case ctx.Err() != nil:
			s.logg.Info(ctx, "outbox publisher stopping")
			return ctx.Err()
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = nextBackoff(wait, s.pollInterval, maxIdleBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := s.sleep(ctx, withJitter(wait)); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}
	}
}

// flush sends anything the Pub/Sub publishers still buffer before exit.
func (s *Service) flush(ctx context.Context) {
	if s.publishers == nil {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	s.publishers.stop(flushCtx)
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.publishOne(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// publishOne publishes a single row and records its fate in tx. Only
// bookkeeping failures are returned; publish failures are recorded on the row.
func (s *Service) publishOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, registry.DLQReason(err), err, s.eventFields(event, nil))
	}

	fields := s.eventFields(event, resolved)
	topic := resolved.Descriptor.Topic
	started := time.Now()
	err = s.publishResolved(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.ObservePublished(topic, notificationKind(resolved), time.Since(started))
		s.logg.Info(s.logg.WithFields(ctx, fields), "notification published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return s.deadLetter(ctx, tx, event, registry.DLQReason(err), err, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		terminalErr := fmt.Errorf("gave up after %d publish attempts: %w", nextAttempt, err)
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, fields)
	}

	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "notification publish failed; will retry")
	s.metrics.IncRetried(topic)
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return nil
}

// deadLetter copies the row into outbox_dlq under reason and stops retries.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["dlq_reason"] = reason
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "notification dead-lettered")

	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		DedupeKey:     event.DedupeKey,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  dlqErrorMessage(err),
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if dlqErr := s.dlq.InsertTx(tx, entry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	s.metrics.IncDeadLettered(string(reason))
	return nil
}

func dlqErrorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(enums.OutboxDLQReasonTopicUnavailable, fmt.Errorf("no publisher for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved),
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(enums.OutboxDLQReasonTopicUnavailable, fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes lets subscribers route and dedupe without decoding the
// body: the email sender filters on notification_kind and dedupes on
// dedupe_key, which is stable across webhook redeliveries.
func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"outbox_id":      event.ID.String(),
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID,
		"dedupe_key":     event.DedupeKey,
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
	}
	if !resolved.Envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	if source := resolved.Envelope.Source; source != nil {
		attrs["source_provider"] = source.Provider
		attrs["source_event_id"] = source.EventID
	}
	if note, ok := resolved.Payload.(*payloads.NotificationRequestedEvent); ok {
		attrs["notification_kind"] = string(note.Kind)
		if note.CustomerID != "" {
			attrs["customer_id"] = note.CustomerID
		}
		// The address stays in the body; the attribute only tells routers
		// whether a customer lookup is needed.
		attrs["has_recipient"] = strconv.FormatBool(note.Recipient != "")
	}
	return attrs
}

func notificationKind(resolved *registry.ResolvedEvent) string {
	if note, ok := resolved.Payload.(*payloads.NotificationRequestedEvent); ok {
		return string(note.Kind)
	}
	return ""
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"dedupe_key":     event.DedupeKey,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved == nil {
		return fields
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID
	if source := resolved.Envelope.Source; source != nil {
		fields["source_event_id"] = source.EventID
	}
	if kind := notificationKind(resolved); kind != "" {
		fields["notification_kind"] = kind
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

// topicPublishers keeps one Pub/Sub publisher per topic so message batching
// spans outbox batches.
type topicPublishers struct {
	client  pubSubClient
	mu      sync.Mutex
	byTopic map[string]*gcppubsub.Publisher
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byTopic[topic]
	if !ok {
		p = t.client.Publisher(topic)
		if p == nil {
			return nil
		}
		t.byTopic[topic] = p
	}
	return gcpPublisher{p}
}

func (t *topicPublishers) stop(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	done := make(chan struct{})
	go func() {
		for _, p := range t.byTopic {
			p.Stop()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
