package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stripeapp-backend/api/responses"
	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

const defaultMaxBodyBytes int64 = 1 << 20

// Processor runs one raw delivery through the provider's pipeline.
type Processor interface {
	Process(ctx context.Context, provider string, body []byte, header http.Header) (webhooks.Result, error)
}

// Webhook serves POST /webhooks/{provider}. The body is read as raw bytes and
// handed to the pipeline untouched; signature verification depends on it.
func Webhook(processor Processor, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if processor == nil {
			responses.WriteWebhookError(w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteWebhookError(w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "reason", err.Error()), "webhook body read failed")
			}
			responses.WriteWebhookError(w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
			return
		}

		provider := chi.URLParam(r, "provider")
		if _, err := processor.Process(ctx, provider, payload, r.Header); err != nil {
			responses.WriteWebhookError(w, err)
			return
		}
		responses.WriteWebhookAck(w)
	}
}
