package validators

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

const maxIDLength = 255

// PathID reads a Stripe object id from the route and checks its prefix.
func PathID(r *http.Request, param, prefix string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, param))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is required", param)).
			WithDetails(map[string]any{"field": param})
	}
	if len(id) > maxIDLength || (prefix != "" && !strings.HasPrefix(id, prefix)) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is malformed", param)).
			WithDetails(map[string]any{"field": param, "prefix": prefix})
	}
	return id, nil
}
