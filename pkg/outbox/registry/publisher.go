package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row and
// dead-letter it under Reason.
type NonRetryableError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.NotificationTopic)
	if topic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.register(EventDescriptor{
		EventType:      enums.EventNotificationRequested,
		Topic:          topic,
		PayloadFactory: func() any { return &payloads.NotificationRequestedEvent{} },
	})
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Topics lists every topic the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	topics := []string{}
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(enums.OutboxDLQReasonUnsupportedEvent, fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if !event.AggregateType.IsValid() {
		return nil, NewNonRetryableError(enums.OutboxDLQReasonUnsupportedEvent, fmt.Errorf("unsupported aggregate type %s", event.AggregateType))
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return nil, NewNonRetryableError(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	if v, ok := payload.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, NewNonRetryableError(enums.OutboxDLQReasonUndeliverable, err)
		}
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(reason enums.OutboxDLQErrorReason, err error) NonRetryableError {
	return NonRetryableError{Reason: reason, Err: err}
}

// DLQReason reports why err ends retries, falling back to the generic
// non-retryable reason for untagged errors.
func DLQReason(err error) enums.OutboxDLQErrorReason {
	var nonRetry NonRetryableError
	if errors.As(err, &nonRetry) && nonRetry.Reason.IsValid() {
		return nonRetry.Reason
	}
	return enums.OutboxDLQReasonNonRetryable
}
