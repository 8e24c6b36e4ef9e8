package payments

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

// CreatePaymentIntentInput describes a one-off charge in major units.
type CreatePaymentIntentInput struct {
	Amount      decimal.Decimal
	Currency    string
	CustomerID  string
	Description string
	Metadata    map[string]string
}

// UpdatePaymentIntentInput carries the mutable fields of an unconfirmed intent.
type UpdatePaymentIntentInput struct {
	Amount      *decimal.Decimal
	Description *string
	Metadata    map[string]string
}

type CreateSubscriptionInput struct {
	CustomerID      string
	PriceID         string
	Quantity        int64
	TrialPeriodDays int64
	Metadata        map[string]string
}

type UpdateSubscriptionInput struct {
	PriceID           *string
	Quantity          *int64
	CancelAtPeriodEnd *bool
	Metadata          map[string]string
}

type CustomerInput struct {
	Email       *string
	Name        *string
	Phone       *string
	Description *string
	Metadata    map[string]string
}

type PortalSessionInput struct {
	CustomerID string
	ReturnURL  string
}

type PaymentIntentCreated struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type PaymentIntentView struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	AmountMajor  string            `json:"amountMajor"`
	Currency     string            `json:"currency"`
	CustomerID   string            `json:"customerId,omitempty"`
	Description  string            `json:"description,omitempty"`
	ClientSecret string            `json:"clientSecret,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type SubscriptionCreated struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	Status         string `json:"status"`
}

type SubscriptionView struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	CustomerID        string            `json:"customerId,omitempty"`
	PriceID           string            `json:"priceId,omitempty"`
	Quantity          int64             `json:"quantity"`
	CancelAtPeriodEnd bool              `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time        `json:"currentPeriodEnd,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type CustomerView struct {
	ID          string            `json:"id"`
	Email       string            `json:"email,omitempty"`
	Name        string            `json:"name,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type PortalSession struct {
	URL string `json:"url"`
}

func paymentIntentView(pi *stripe.PaymentIntent) *PaymentIntentView {
	view := &PaymentIntentView{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		AmountMajor:  FromMinorUnits(pi.Amount, string(pi.Currency)).StringFixed(currencyExponent(string(pi.Currency))),
		Currency:     string(pi.Currency),
		Description:  pi.Description,
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		view.CustomerID = pi.Customer.ID
	}
	return view
}

func subscriptionView(sub *stripe.Subscription) *SubscriptionView {
	view := &SubscriptionView{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		view.CustomerID = sub.Customer.ID
	}
	if item := firstItem(sub); item != nil {
		if item.Price != nil {
			view.PriceID = item.Price.ID
		}
		view.Quantity = item.Quantity
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			view.CurrentPeriodEnd = &end
		}
	}
	return view
}

func customerView(c *stripe.Customer) *CustomerView {
	return &CustomerView{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		Phone:       c.Phone,
		Description: c.Description,
		Metadata:    c.Metadata,
	}
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}
