package payments

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/stripeapp-backend/pkg/stripe"
)

const (
	paymentBehaviorDefaultIncomplete = "default_incomplete"
	saveMethodOnSubscription         = "on_subscription"
	expandConfirmationSecret         = "latest_invoice.confirmation_secret"
	prorationCreate                  = "create_prorations"
)

// Service is the outbound Stripe surface used by the browser checkout flows.
// Nothing here writes to the billing tables; those follow from webhooks.
type Service interface {
	CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentCreated, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentView, error)
	UpdatePaymentIntent(ctx context.Context, id string, input UpdatePaymentIntentInput) (*PaymentIntentView, error)
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionCreated, error)
	GetSubscription(ctx context.Context, id string) (*SubscriptionView, error)
	UpdateSubscription(ctx context.Context, id string, input UpdateSubscriptionInput) (*SubscriptionView, error)
	CreateCustomer(ctx context.Context, input CustomerInput) (*CustomerView, error)
	GetCustomer(ctx context.Context, id string) (*CustomerView, error)
	UpdateCustomer(ctx context.Context, id string, input CustomerInput) (*CustomerView, error)
	CreatePortalSession(ctx context.Context, input PortalSessionInput) (*PortalSession, error)
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Gateway             pkgstripe.Gateway
	DefaultCurrency     string
	SupportedCurrencies []string
	PortalReturnURL     string
	Logger              *logger.Logger
}

type service struct {
	gateway         pkgstripe.Gateway
	defaultCurrency string
	currencies      []string
	portalReturnURL string
	logg            *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	currency := normalizeCurrency(params.DefaultCurrency)
	if currency == "" {
		return nil, fmt.Errorf("default currency required")
	}
	if strings.TrimSpace(params.PortalReturnURL) == "" {
		return nil, fmt.Errorf("portal return url required")
	}
	currencies := []string{currency}
	for _, c := range params.SupportedCurrencies {
		c = normalizeCurrency(c)
		if c != "" && !slices.Contains(currencies, c) {
			currencies = append(currencies, c)
		}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		gateway:         params.Gateway,
		defaultCurrency: currency,
		currencies:      currencies,
		portalReturnURL: strings.TrimSpace(params.PortalReturnURL),
		logg:            logg,
	}, nil
}

func (s *service) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentCreated, error) {
	currency, err := s.resolveCurrency(input.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := ToMinorUnits(input.Amount, currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if id := strings.TrimSpace(input.CustomerID); id != "" {
		params.Customer = stripe.String(id)
	}
	if d := strings.TrimSpace(input.Description); d != "" {
		params.Description = stripe.String(d)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.gateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": pi.ID,
		"amount":            amount,
		"currency":          currency,
	}), "payment intent created")
	return &PaymentIntentCreated{ClientSecret: pi.ClientSecret, PaymentIntentID: pi.ID}, nil
}

func (s *service) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentView, error) {
	pi, err := s.gateway.RetrievePaymentIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	return paymentIntentView(pi), nil
}

func (s *service) UpdatePaymentIntent(ctx context.Context, id string, input UpdatePaymentIntentInput) (*PaymentIntentView, error) {
	if input.Amount == nil && input.Description == nil && len(input.Metadata) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	params := &stripe.PaymentIntentUpdateParams{}
	if input.Amount != nil {
		current, err := s.gateway.RetrievePaymentIntent(ctx, id)
		if err != nil {
			return nil, err
		}
		amount, err := ToMinorUnits(*input.Amount, string(current.Currency))
		if err != nil {
			return nil, err
		}
		params.Amount = stripe.Int64(amount)
	}
	if input.Description != nil {
		params.Description = stripe.String(strings.TrimSpace(*input.Description))
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.gateway.UpdatePaymentIntent(ctx, id, params)
	if err != nil {
		return nil, err
	}
	return paymentIntentView(pi), nil
}

func (s *service) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionCreated, error) {
	customerID := strings.TrimSpace(input.CustomerID)
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	priceID := strings.TrimSpace(input.PriceID)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price id is required")
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(quantity)},
		},
		PaymentBehavior: stripe.String(paymentBehaviorDefaultIncomplete),
		PaymentSettings: &stripe.SubscriptionCreatePaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String(saveMethodOnSubscription),
		},
	}
	if input.TrialPeriodDays > 0 {
		params.TrialPeriodDays = stripe.Int64(input.TrialPeriodDays)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand(expandConfirmationSecret)

	sub, err := s.gateway.CreateSubscription(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &SubscriptionCreated{SubscriptionID: sub.ID, Status: string(sub.Status)}
	if sub.LatestInvoice != nil && sub.LatestInvoice.ConfirmationSecret != nil {
		out.ClientSecret = sub.LatestInvoice.ConfirmationSecret.ClientSecret
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"subscription_id": sub.ID,
		"customer_id":     customerID,
		"status":          out.Status,
	}), "subscription created")
	return out, nil
}

func (s *service) GetSubscription(ctx context.Context, id string) (*SubscriptionView, error) {
	sub, err := s.gateway.RetrieveSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return subscriptionView(sub), nil
}

// UpdateSubscription changes the single priced item in place. Stripe needs
// the item id to swap price or quantity, so the subscription is read first.
func (s *service) UpdateSubscription(ctx context.Context, id string, input UpdateSubscriptionInput) (*SubscriptionView, error) {
	changesItem := input.PriceID != nil || input.Quantity != nil
	if !changesItem && input.CancelAtPeriodEnd == nil && len(input.Metadata) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	params := &stripe.SubscriptionUpdateParams{}
	if changesItem {
		current, err := s.gateway.RetrieveSubscription(ctx, id)
		if err != nil {
			return nil, err
		}
		item := firstItem(current)
		if item == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription has no items to update")
		}
		update := &stripe.SubscriptionUpdateItemParams{ID: stripe.String(item.ID)}
		if input.PriceID != nil {
			price := strings.TrimSpace(*input.PriceID)
			if price == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "price id must not be blank")
			}
			update.Price = stripe.String(price)
		}
		if input.Quantity != nil {
			if *input.Quantity <= 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
			}
			update.Quantity = stripe.Int64(*input.Quantity)
		}
		params.Items = []*stripe.SubscriptionUpdateItemParams{update}
		params.ProrationBehavior = stripe.String(prorationCreate)
	}
	if input.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripe.Bool(*input.CancelAtPeriodEnd)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := s.gateway.UpdateSubscription(ctx, id, params)
	if err != nil {
		return nil, err
	}
	return subscriptionView(sub), nil
}

func (s *service) CreateCustomer(ctx context.Context, input CustomerInput) (*CustomerView, error) {
	params := &stripe.CustomerCreateParams{
		Email:       trimmed(input.Email),
		Name:        trimmed(input.Name),
		Phone:       trimmed(input.Phone),
		Description: trimmed(input.Description),
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	c, err := s.gateway.CreateCustomer(ctx, params)
	if err != nil {
		return nil, err
	}
	return customerView(c), nil
}

func (s *service) GetCustomer(ctx context.Context, id string) (*CustomerView, error) {
	c, err := s.gateway.RetrieveCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer has been deleted")
	}
	return customerView(c), nil
}

func (s *service) UpdateCustomer(ctx context.Context, id string, input CustomerInput) (*CustomerView, error) {
	if input.Email == nil && input.Name == nil && input.Phone == nil && input.Description == nil && len(input.Metadata) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	params := &stripe.CustomerUpdateParams{
		Email:       trimmed(input.Email),
		Name:        trimmed(input.Name),
		Phone:       trimmed(input.Phone),
		Description: trimmed(input.Description),
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	c, err := s.gateway.UpdateCustomer(ctx, id, params)
	if err != nil {
		return nil, err
	}
	return customerView(c), nil
}

func (s *service) CreatePortalSession(ctx context.Context, input PortalSessionInput) (*PortalSession, error) {
	customerID := strings.TrimSpace(input.CustomerID)
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = s.portalReturnURL
	}
	session, err := s.gateway.CreateBillingPortalSession(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return nil, err
	}
	return &PortalSession{URL: session.URL}, nil
}

func (s *service) resolveCurrency(raw string) (string, error) {
	currency := normalizeCurrency(raw)
	if currency == "" {
		return s.defaultCurrency, nil
	}
	if !slices.Contains(s.currencies, currency) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("currency %q is not supported", currency)).
			WithDetails(map[string]any{"supported": s.currencies})
	}
	return currency, nil
}

func normalizeCurrency(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	return stripe.String(strings.TrimSpace(*v))
}
