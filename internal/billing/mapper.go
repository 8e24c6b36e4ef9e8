package billing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

// PaymentFromStripe maps a payment intent onto the payments row at version.
func PaymentFromStripe(pi *stripe.PaymentIntent, version time.Time) (*models.Payment, error) {
	if pi == nil || strings.TrimSpace(pi.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	status, err := enums.ParsePaymentStatus(string(pi.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment intent status")
	}
	metadata, err := encodeMetadata(pi.Metadata)
	if err != nil {
		return nil, err
	}
	payment := &models.Payment{
		StripePaymentIntentID: pi.ID,
		Status:                status,
		AmountCents:           pi.Amount,
		Currency:              strings.ToLower(string(pi.Currency)),
		ReceiptEmail:          trimmedPtr(pi.ReceiptEmail),
		Metadata:              metadata,
		SourceEventAt:         version.UTC(),
	}
	if pi.Customer != nil {
		payment.StripeCustomerID = trimmedPtr(pi.Customer.ID)
	}
	if pi.LastPaymentError != nil {
		payment.FailureMessage = trimmedPtr(pi.LastPaymentError.Msg)
	}
	return payment, nil
}

// SubscriptionFromStripe maps a subscription onto the subscriptions row at version.
func SubscriptionFromStripe(sub *stripe.Subscription, version time.Time) (*models.Subscription, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	if sub.Customer == nil || strings.TrimSpace(sub.Customer.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription customer is required")
	}
	status, err := enums.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported subscription status")
	}
	metadata, err := encodeMetadata(sub.Metadata)
	if err != nil {
		return nil, err
	}
	out := &models.Subscription{
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.Customer.ID,
		Status:               status,
		Quantity:             1,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CanceledAt:           toTimePtr(sub.CanceledAt),
		Metadata:             metadata,
		SourceEventAt:        version.UTC(),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = trimmedPtr(item.Price.ID)
		}
		if item.Quantity > 0 {
			out.Quantity = item.Quantity
		}
		out.CurrentPeriodEnd = toTimePtr(item.CurrentPeriodEnd)
	}
	return out, nil
}

// InvoiceFromStripe maps an invoice onto the invoices row at version. The
// subscription id is passed separately because its location in the payload
// depends on the API version.
func InvoiceFromStripe(inv *stripe.Invoice, subscriptionID string, version time.Time) (*models.Invoice, error) {
	if inv == nil || strings.TrimSpace(inv.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if inv.Customer == nil || strings.TrimSpace(inv.Customer.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice customer is required")
	}
	status, err := enums.ParseInvoiceStatus(string(inv.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported invoice status")
	}
	return &models.Invoice{
		StripeInvoiceID:      inv.ID,
		StripeCustomerID:     inv.Customer.ID,
		StripeSubscriptionID: trimmedPtr(subscriptionID),
		Status:               status,
		AmountDueCents:       inv.AmountDue,
		AmountPaidCents:      inv.AmountPaid,
		Currency:             strings.ToLower(string(inv.Currency)),
		AttemptCount:         inv.AttemptCount,
		HostedInvoiceURL:     trimmedPtr(inv.HostedInvoiceURL),
		SourceEventAt:        version.UTC(),
	}, nil
}

// CustomerFromStripe maps a customer onto the customers row at version.
func CustomerFromStripe(c *stripe.Customer, version time.Time) (*models.Customer, error) {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	metadata, err := encodeMetadata(c.Metadata)
	if err != nil {
		return nil, err
	}
	return &models.Customer{
		StripeCustomerID: c.ID,
		Email:            trimmedPtr(c.Email),
		Name:             trimmedPtr(c.Name),
		Metadata:         metadata,
		SourceEventAt:    version.UTC(),
	}, nil
}

func encodeMetadata(metadata map[string]string) (json.RawMessage, error) {
	if len(metadata) == 0 {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal metadata")
	}
	return json.RawMessage(data), nil
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}
