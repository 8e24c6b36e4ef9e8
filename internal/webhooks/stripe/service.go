package stripewebhook

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/internal/billing"
	"github.com/angelmondragon/stripeapp-backend/internal/notifications"
	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubscriptionFetcher re-reads a subscription from Stripe when an event
// carries only its id.
type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	Notifier          notifications.Notifier
	TransactionRunner txRunner
	Subscriptions     SubscriptionFetcher
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service applies Stripe events to the billing tables. Each handler writes
// its domain row and queues its notification in one transaction.
type Service struct {
	billingRepo   billing.Repository
	notifier      notifications.Notifier
	txRunner      txRunner
	subscriptions SubscriptionFetcher
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription fetcher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		billingRepo:   params.BillingRepo,
		notifier:      params.Notifier,
		txRunner:      params.TransactionRunner,
		subscriptions: params.Subscriptions,
		logg:          logg,
		now:           now,
	}, nil
}

// Handlers returns the dispatch table for every event kind this service owns.
func (s *Service) Handlers() webhooks.Handlers {
	return webhooks.Handlers{
		PaymentIntentSucceeded:  webhooks.HandlerFunc(s.handlePaymentSucceeded),
		PaymentIntentFailed:     webhooks.HandlerFunc(s.handlePaymentFailed),
		SubscriptionCreated:     webhooks.HandlerFunc(s.handleSubscriptionCreated),
		SubscriptionUpdated:     webhooks.HandlerFunc(s.handleSubscriptionUpdated),
		SubscriptionDeleted:     webhooks.HandlerFunc(s.handleSubscriptionDeleted),
		InvoicePaymentSucceeded: webhooks.HandlerFunc(s.handleInvoicePaid),
		InvoicePaymentFailed:    webhooks.HandlerFunc(s.handleInvoiceFailed),
		CustomerCreated:         webhooks.HandlerFunc(s.handleCustomerCreated),
		CustomerUpdated:         webhooks.HandlerFunc(s.handleCustomerUpdated),
	}
}

// classify decides the severity of a failure. Bad input never heals on
// redelivery; anything else might.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		return webhooks.Fatal(err)
	default:
		return webhooks.Retryable(err)
	}
}

func (s *Service) logApplied(ctx context.Context, event *webhooks.VerifiedEvent, aggregateID string, applied bool) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":     event.ID(),
		"event_type":   event.Type(),
		"aggregate_id": aggregateID,
		"applied":      applied,
	})
	if applied {
		s.logg.Info(logCtx, "stripe event applied")
		return
	}
	s.logg.Info(logCtx, "stripe event older than stored state, skipped")
}
