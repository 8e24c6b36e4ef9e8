package enums

import "fmt"

// OutboxAggregateType names the billing record an outbox row refers to.
type OutboxAggregateType string

const (
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateInvoice      OutboxAggregateType = "invoice"
	AggregateCustomer     OutboxAggregateType = "customer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateSubscription,
	AggregateInvoice,
	AggregateCustomer,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the message published for an outbox row.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNotificationRequested,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
