package stripewebhook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/internal/billing"
	"github.com/angelmondragon/stripeapp-backend/internal/notifications"
	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applyPayment(ctx, event, enums.PaymentStatusSucceeded, enums.NotificationPaymentReceipt)
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applyPayment(ctx, event, enums.PaymentStatusFailed, enums.NotificationPaymentFailed)
}

// applyPayment records the terminal status named by the event type; the
// object's own status lags behind it for failed attempts.
func (s *Service) applyPayment(ctx context.Context, event *webhooks.VerifiedEvent, status enums.PaymentStatus, kind enums.NotificationKind) error {
	var pi stripe.PaymentIntent
	if err := event.Decode(&pi); err != nil {
		return webhooks.Fatal(err)
	}
	if pi.Status == "" {
		pi.Status = stripe.PaymentIntentStatus(status)
	}
	payment, err := billing.PaymentFromStripe(&pi, event.Created())
	if err != nil {
		return webhooks.Fatal(err)
	}
	payment.Status = status

	var applied bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err = s.billingRepo.WithTx(tx).UpsertPayment(ctx, payment)
		if err != nil || !applied {
			return err
		}
		return s.notifier.Notify(ctx, tx, notifications.Notification{
			Kind:          kind,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.StripePaymentIntentID,
			Provider:      event.Provider(),
			EventID:       event.ID(),
			Recipient:     deref(payment.ReceiptEmail),
			CustomerID:    deref(payment.StripeCustomerID),
			OccurredAt:    event.Created(),
			Data: map[string]string{
				"amount_cents":   strconv.FormatInt(payment.AmountCents, 10),
				"currency":       payment.Currency,
				"failure_reason": deref(payment.FailureMessage),
			},
		})
	})
	if err != nil {
		return classify(err)
	}
	s.logApplied(ctx, event, payment.StripePaymentIntentID, applied)
	return nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, event *webhooks.VerifiedEvent) error {
	kind := enums.NotificationSubscriptionWelcome
	return s.applySubscription(ctx, event, &kind)
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applySubscription(ctx, event, nil)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *webhooks.VerifiedEvent) error {
	kind := enums.NotificationSubscriptionCanceled
	return s.applySubscription(ctx, event, &kind)
}

func (s *Service) applySubscription(ctx context.Context, event *webhooks.VerifiedEvent, kind *enums.NotificationKind) error {
	var stripeSub stripe.Subscription
	if err := event.Decode(&stripeSub); err != nil {
		return webhooks.Fatal(err)
	}
	sub, err := billing.SubscriptionFromStripe(&stripeSub, event.Created())
	if err != nil {
		return webhooks.Fatal(err)
	}
	if event.Kind() == webhooks.KindSubscriptionDeleted {
		sub.Status = enums.SubscriptionStatusCanceled
	}

	var applied bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err = s.billingRepo.WithTx(tx).UpsertSubscription(ctx, sub)
		if err != nil || !applied || kind == nil {
			return err
		}
		return s.notifier.Notify(ctx, tx, notifications.Notification{
			Kind:          *kind,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.StripeSubscriptionID,
			Provider:      event.Provider(),
			EventID:       event.ID(),
			CustomerID:    sub.StripeCustomerID,
			OccurredAt:    event.Created(),
			Data: map[string]string{
				"status":   string(sub.Status),
				"price_id": deref(sub.PriceID),
			},
		})
	})
	if err != nil {
		return classify(err)
	}
	s.logApplied(ctx, event, sub.StripeSubscriptionID, applied)
	return nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applyInvoice(ctx, event, enums.NotificationInvoiceReceipt, false)
}

// handleInvoiceFailed also re-reads the invoice's subscription so its
// dunning status lands with the invoice.
func (s *Service) handleInvoiceFailed(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applyInvoice(ctx, event, enums.NotificationInvoicePaymentFailed, true)
}

func (s *Service) applyInvoice(ctx context.Context, event *webhooks.VerifiedEvent, kind enums.NotificationKind, syncSubscription bool) error {
	var inv stripe.Invoice
	if err := event.Decode(&inv); err != nil {
		return webhooks.Fatal(err)
	}
	subscriptionID := invoiceSubscriptionID(event)
	invoice, err := billing.InvoiceFromStripe(&inv, subscriptionID, event.Created())
	if err != nil {
		return webhooks.Fatal(err)
	}

	// The fetched subscription is as fresh as the fetch, not the event.
	var sub *models.Subscription
	if syncSubscription && subscriptionID != "" {
		stripeSub, err := s.subscriptions.RetrieveSubscription(ctx, subscriptionID)
		if err != nil {
			return classify(fmt.Errorf("fetch subscription %s: %w", subscriptionID, err))
		}
		sub, err = billing.SubscriptionFromStripe(stripeSub, s.now())
		if err != nil {
			return webhooks.Fatal(err)
		}
	}

	var applied bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		applied, err = repo.UpsertInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		if sub != nil {
			if _, err := repo.UpsertSubscription(ctx, sub); err != nil {
				return err
			}
		}
		if !applied {
			return nil
		}
		return s.notifier.Notify(ctx, tx, notifications.Notification{
			Kind:          kind,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.StripeInvoiceID,
			Provider:      event.Provider(),
			EventID:       event.ID(),
			Recipient:     inv.CustomerEmail,
			CustomerID:    invoice.StripeCustomerID,
			OccurredAt:    event.Created(),
			Data: map[string]string{
				"amount_due_cents":   strconv.FormatInt(invoice.AmountDueCents, 10),
				"amount_paid_cents":  strconv.FormatInt(invoice.AmountPaidCents, 10),
				"currency":           invoice.Currency,
				"hosted_invoice_url": deref(invoice.HostedInvoiceURL),
				"attempt_count":      strconv.FormatInt(invoice.AttemptCount, 10),
			},
		})
	})
	if err != nil {
		return classify(err)
	}
	s.logApplied(ctx, event, invoice.StripeInvoiceID, applied)
	return nil
}

// invoiceSubscriptionID reads the subscription id from its current location
// under parent.subscription_details, falling back to the legacy top-level field.
func invoiceSubscriptionID(event *webhooks.VerifiedEvent) string {
	if id := event.Field("parent", "subscription_details", "subscription"); id != "" {
		return id
	}
	if id := event.Field("subscription"); id != "" {
		return id
	}
	return event.Field("subscription", "id")
}

func (s *Service) handleCustomerCreated(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applyCustomer(ctx, event, true)
}

func (s *Service) handleCustomerUpdated(ctx context.Context, event *webhooks.VerifiedEvent) error {
	return s.applyCustomer(ctx, event, false)
}

// customer.updated outranks customer.created stamped in the same second.
const customerUpdatedRank = 1

func (s *Service) applyCustomer(ctx context.Context, event *webhooks.VerifiedEvent, welcome bool) error {
	var c stripe.Customer
	if err := event.Decode(&c); err != nil {
		return webhooks.Fatal(err)
	}
	customer, err := billing.CustomerFromStripe(&c, event.Created())
	if err != nil {
		return webhooks.Fatal(err)
	}
	if !welcome {
		customer.StateRank = customerUpdatedRank
	}

	var applied bool
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err = s.billingRepo.WithTx(tx).UpsertCustomer(ctx, customer)
		if err != nil || !applied || !welcome {
			return err
		}
		if customer.Email == nil {
			return nil
		}
		return s.notifier.Notify(ctx, tx, notifications.Notification{
			Kind:          enums.NotificationCustomerWelcome,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   customer.StripeCustomerID,
			Provider:      event.Provider(),
			EventID:       event.ID(),
			Recipient:     *customer.Email,
			CustomerID:    customer.StripeCustomerID,
			OccurredAt:    event.Created(),
			Data:          map[string]string{"name": deref(customer.Name)},
		})
	})
	if err != nil {
		return classify(err)
	}
	s.logApplied(ctx, event, customer.StripeCustomerID, applied)
	return nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
