package payments

import (
	"net/http"

	"github.com/angelmondragon/stripeapp-backend/api/responses"
	"github.com/angelmondragon/stripeapp-backend/api/validators"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type customerRequest struct {
	Email       *string           `json:"email" validate:"omitempty,email,max=512"`
	Name        *string           `json:"name" validate:"omitempty,max=256"`
	Phone       *string           `json:"phone" validate:"omitempty,max=20"`
	Description *string           `json:"description" validate:"omitempty,max=500"`
	Metadata    map[string]string `json:"metadata" validate:"omitempty,stripe_metadata"`
}

func (c customerRequest) input() payments.CustomerInput {
	return payments.CustomerInput{
		Email:       c.Email,
		Name:        c.Name,
		Phone:       c.Phone,
		Description: c.Description,
		Metadata:    validators.SanitizeMetadata(c.Metadata),
	}
}

// CreateCustomer handles POST /api/v1/customers.
func CreateCustomer(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body customerRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.CreateCustomer(r.Context(), body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// GetCustomer handles GET /api/v1/customers/{id}.
func GetCustomer(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathID(r, "id", "cus_")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.GetCustomer(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// UpdateCustomer handles PATCH /api/v1/customers/{id}.
func UpdateCustomer(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathID(r, "id", "cus_")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body customerRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.UpdateCustomer(r.Context(), id, body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
