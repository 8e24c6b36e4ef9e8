package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

// Gateway is the outbound subset of the Stripe API the service calls.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentUpdateParams) (*stripe.PaymentIntent, error)
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error)
	CreateBillingPortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
}

type gateway struct {
	api *stripe.Client
}

// NewGateway exposes the client's API through Gateway. Stripe errors are
// translated into coded errors.
func NewGateway(client *Client) (Gateway, error) {
	if client == nil || client.API() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	return &gateway{api: client.API()}, nil
}

func (g *gateway) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	pi, err := g.api.V1PaymentIntents.Create(ctx, params)
	return pi, mapError(err, "create payment intent")
}

func (g *gateway) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if err := requireID(id, "payment intent"); err != nil {
		return nil, err
	}
	pi, err := g.api.V1PaymentIntents.Retrieve(ctx, id, nil)
	return pi, mapError(err, "retrieve payment intent")
}

func (g *gateway) UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentUpdateParams) (*stripe.PaymentIntent, error) {
	if err := requireID(id, "payment intent"); err != nil {
		return nil, err
	}
	pi, err := g.api.V1PaymentIntents.Update(ctx, id, params)
	return pi, mapError(err, "update payment intent")
}

func (g *gateway) CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	sub, err := g.api.V1Subscriptions.Create(ctx, params)
	return sub, mapError(err, "create subscription")
}

func (g *gateway) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if err := requireID(id, "subscription"); err != nil {
		return nil, err
	}
	sub, err := g.api.V1Subscriptions.Retrieve(ctx, id, nil)
	return sub, mapError(err, "retrieve subscription")
}

func (g *gateway) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	if err := requireID(id, "subscription"); err != nil {
		return nil, err
	}
	sub, err := g.api.V1Subscriptions.Update(ctx, id, params)
	return sub, mapError(err, "update subscription")
}

func (g *gateway) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	c, err := g.api.V1Customers.Create(ctx, params)
	return c, mapError(err, "create customer")
}

func (g *gateway) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	if err := requireID(id, "customer"); err != nil {
		return nil, err
	}
	c, err := g.api.V1Customers.Retrieve(ctx, id, nil)
	return c, mapError(err, "retrieve customer")
}

func (g *gateway) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error) {
	if err := requireID(id, "customer"); err != nil {
		return nil, err
	}
	c, err := g.api.V1Customers.Update(ctx, id, params)
	return c, mapError(err, "update customer")
}

func (g *gateway) CreateBillingPortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error) {
	session, err := g.api.V1BillingPortalSessions.Create(ctx, params)
	return session, mapError(err, "create billing portal session")
}

func requireID(id, resource string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, resource+" id is required")
	}
	return nil
}

// mapError classifies a Stripe API error. Client mistakes surface as
// validation or not-found errors; everything else is an upstream failure.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
		case stripeErr.Type == stripe.ErrorTypeCard,
			stripeErr.HTTPStatusCode == http.StatusBadRequest:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op).WithDetails(map[string]any{
				"type":  string(stripeErr.Type),
				"code":  string(stripeErr.Code),
				"param": stripeErr.Param,
			})
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, op)
}
