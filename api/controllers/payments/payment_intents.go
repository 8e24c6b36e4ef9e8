package payments

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stripeapp-backend/api/responses"
	"github.com/angelmondragon/stripeapp-backend/api/validators"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

const maxDescriptionLen = 500

type createPaymentIntentRequest struct {
	Amount      *decimal.Decimal  `json:"amount" validate:"required"`
	Currency    string            `json:"currency" validate:"omitempty,currency"`
	CustomerID  string            `json:"customerId" validate:"omitempty,stripeid=cus"`
	Description string            `json:"description" validate:"omitempty,max=500"`
	Metadata    map[string]string `json:"metadata" validate:"omitempty,stripe_metadata"`
}

type updatePaymentIntentRequest struct {
	Amount      *decimal.Decimal  `json:"amount"`
	Description *string           `json:"description" validate:"omitempty,max=500"`
	Metadata    map[string]string `json:"metadata" validate:"omitempty,stripe_metadata"`
}

// CreatePaymentIntent handles POST /api/v1/payment-intents.
func CreatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createPaymentIntentRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.CreatePaymentIntent(r.Context(), payments.CreatePaymentIntentInput{
			Amount:      *body.Amount,
			Currency:    body.Currency,
			CustomerID:  body.CustomerID,
			Description: validators.SanitizeText(body.Description, maxDescriptionLen),
			Metadata:    validators.SanitizeMetadata(body.Metadata),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// GetPaymentIntent handles GET /api/v1/payment-intents/{id}.
func GetPaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathID(r, "id", "pi_")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.GetPaymentIntent(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// UpdatePaymentIntent handles PATCH /api/v1/payment-intents/{id}.
func UpdatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathID(r, "id", "pi_")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updatePaymentIntentRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.UpdatePaymentIntent(r.Context(), id, payments.UpdatePaymentIntentInput{
			Amount:      body.Amount,
			Description: body.Description,
			Metadata:    validators.SanitizeMetadata(body.Metadata),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
