package payments

import (
	"net/http"

	"github.com/angelmondragon/stripeapp-backend/api/responses"
	"github.com/angelmondragon/stripeapp-backend/api/validators"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type createSubscriptionRequest struct {
	CustomerID      string            `json:"customerId" validate:"required,stripeid=cus"`
	PriceID         string            `json:"priceId" validate:"required,stripeid=price"`
	Quantity        int64             `json:"quantity" validate:"omitempty,min=1"`
	TrialPeriodDays int64             `json:"trialPeriodDays" validate:"omitempty,min=1,max=730"`
	Metadata        map[string]string `json:"metadata" validate:"omitempty,stripe_metadata"`
}

type updateSubscriptionRequest struct {
	PriceID           *string           `json:"priceId" validate:"omitempty,stripeid=price"`
	Quantity          *int64            `json:"quantity" validate:"omitempty,min=1"`
	CancelAtPeriodEnd *bool             `json:"cancelAtPeriodEnd"`
	Metadata          map[string]string `json:"metadata" validate:"omitempty,stripe_metadata"`
}

// CreateSubscription handles POST /api/v1/subscriptions. The subscription
// starts incomplete; the client confirms the first invoice with the
// returned client secret.
func CreateSubscription(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createSubscriptionRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.CreateSubscription(r.Context(), payments.CreateSubscriptionInput{
			CustomerID:      body.CustomerID,
			PriceID:         body.PriceID,
			Quantity:        body.Quantity,
			TrialPeriodDays: body.TrialPeriodDays,
			Metadata:        validators.SanitizeMetadata(body.Metadata),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// GetSubscription handles GET /api/v1/subscriptions/{id}.
func GetSubscription(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathID(r, "id", "sub_")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.GetSubscription(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// UpdateSubscription handles PATCH /api/v1/subscriptions/{id}.
func UpdateSubscription(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathID(r, "id", "sub_")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateSubscriptionRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.UpdateSubscription(r.Context(), id, payments.UpdateSubscriptionInput{
			PriceID:           body.PriceID,
			Quantity:          body.Quantity,
			CancelAtPeriodEnd: body.CancelAtPeriodEnd,
			Metadata:          validators.SanitizeMetadata(body.Metadata),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
