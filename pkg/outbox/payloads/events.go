package payloads

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// NotificationRequestedEvent asks the email sender to deliver a
// customer-facing message for a billing change.
type NotificationRequestedEvent struct {
	Kind          enums.NotificationKind    `json:"kind"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	Recipient     string                    `json:"recipient,omitempty"`
	CustomerID    string                    `json:"customer_id,omitempty"`
	Data          map[string]string         `json:"data,omitempty"`
}

// Validate rejects notifications the email sender could never deliver.
func (e *NotificationRequestedEvent) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("unknown notification kind %q", e.Kind)
	}
	if e.Recipient == "" && e.CustomerID == "" {
		return errors.New("notification has neither a recipient nor a customer")
	}
	return nil
}
