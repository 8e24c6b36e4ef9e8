package payments

import (
	"net/http"

	"github.com/angelmondragon/stripeapp-backend/api/responses"
	"github.com/angelmondragon/stripeapp-backend/api/validators"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type portalSessionRequest struct {
	CustomerID string `json:"customerId" validate:"required,stripeid=cus"`
	ReturnURL  string `json:"returnUrl" validate:"omitempty,url"`
}

// CreatePortalSession handles POST /api/v1/billing-portal/sessions.
func CreatePortalSession(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body portalSessionRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.CreatePortalSession(r.Context(), payments.PortalSessionInput{
			CustomerID: body.CustomerID,
			ReturnURL:  body.ReturnURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}
