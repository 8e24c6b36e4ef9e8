package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox/payloads"
)

// Notification is a customer-facing message request raised by a webhook handler.
type Notification struct {
	Kind          enums.NotificationKind
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Provider      string
	EventID       string
	Recipient     string
	CustomerID    string
	OccurredAt    time.Time
	Data          map[string]string
}

// DedupeKey scopes a notification to the provider event that raised it, so a
// redelivered event never queues the same message twice.
func (n Notification) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%s", n.Provider, n.EventID, n.Kind)
}

// Notifier queues notifications in the caller's transaction.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n Notification) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type outboxNotifier struct {
	outbox emitter
}

// NewNotifier returns a Notifier backed by the outbox.
func NewNotifier(outboxSvc emitter) (Notifier, error) {
	if outboxSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox service required")
	}
	return &outboxNotifier{outbox: outboxSvc}, nil
}

func (n *outboxNotifier) Notify(ctx context.Context, tx *gorm.DB, note Notification) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !note.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification kind %q", note.Kind))
	}
	if strings.TrimSpace(note.EventID) == "" || strings.TrimSpace(note.AggregateID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification event id and aggregate id are required")
	}

	_, err := n.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: note.AggregateType,
		AggregateID:   note.AggregateID,
		DedupeKey:     note.DedupeKey(),
		Source:        &outbox.SourceRef{Provider: note.Provider, EventID: note.EventID},
		OccurredAt:    note.OccurredAt,
		Data: payloads.NotificationRequestedEvent{
			Kind:          note.Kind,
			AggregateType: note.AggregateType,
			AggregateID:   note.AggregateID,
			Recipient:     strings.TrimSpace(note.Recipient),
			CustomerID:    note.CustomerID,
			Data:          note.Data,
		},
	})
	if err != nil {
		return fmt.Errorf("queue %s notification: %w", note.Kind, err)
	}
	return nil
}
