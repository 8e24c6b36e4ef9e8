package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	payloadBytes := mustMarshal(t, payloads.NotificationRequestedEvent{
		Kind:          enums.NotificationPaymentReceipt,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_123",
		Recipient:     "buyer@example.com",
	})

	event := models.OutboxEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_123",
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "notification-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.NotificationRequestedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.Kind != enums.NotificationPaymentReceipt || payload.Recipient != "buyer@example.com" {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("refund_issued"),
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_123",
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	assertNonRetryable(t, reg, event, enums.OutboxDLQReasonUnsupportedEvent)
}

func TestEventRegistryResolveUnknownAggregate(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.OutboxAggregateType("refund"),
		AggregateID:   "re_123",
		Payload:       mustEnvelope(t, []byte(`{"kind":"payment_receipt"}`)),
	}

	assertNonRetryable(t, reg, event, enums.OutboxDLQReasonUnsupportedEvent)
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   " ",
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	assertNonRetryable(t, reg, event, enums.OutboxDLQReasonMalformedPayload)
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_123",
		Payload:       mustEnvelope(t, []byte("null")),
	}

	assertNonRetryable(t, reg, event, enums.OutboxDLQReasonMalformedPayload)
}

func TestEventRegistryResolveUndeliverableNotification(t *testing.T) {
	reg := newTestEventRegistry(t)

	payloadBytes := mustMarshal(t, payloads.NotificationRequestedEvent{
		Kind:          enums.NotificationPaymentReceipt,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_guest",
	})
	event := models.OutboxEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "pi_guest",
		Payload:       mustEnvelope(t, payloadBytes),
	}

	assertNonRetryable(t, reg, event, enums.OutboxDLQReasonUndeliverable)
}

func TestDLQReasonFallsBackForUntaggedErrors(t *testing.T) {
	if got := DLQReason(errors.New("boom")); got != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", got)
	}
	if got := DLQReason(NonRetryableError{Err: errors.New("boom")}); got != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", got)
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic error")
	}
	reg := newTestEventRegistry(t)
	if topics := reg.Topics(); len(topics) != 1 || topics[0] != "notification-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func assertNonRetryable(t *testing.T, reg *EventRegistry, event models.OutboxEvent, reason enums.OutboxDLQErrorReason) {
	t.Helper()
	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
	if got := DLQReason(err); got != reason {
		t.Fatalf("expected dlq reason %s, got %s", reason, got)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "notification-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
