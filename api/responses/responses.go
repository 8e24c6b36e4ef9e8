package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// WebhookAck and WebhookError are the flat bodies processors expect from
// webhook endpoints.
type WebhookAck struct {
	Received bool `json:"received"`
}

type WebhookError struct {
	Error string `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := normalize(err)
	meta := pkgerrors.MetadataFor(typed.Code())

	payload := ErrorEnvelope{
		Error: APIError{
			Code:    string(typed.Code()),
			Message: publicMessage(typed, meta),
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	logError(ctx, logg, err)
	writeJSON(w, meta.HTTPStatus, payload)
}

// WriteWebhookAck answers a delivery the pipeline accepted, ignored or
// recognised as a duplicate.
func WriteWebhookAck(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, WebhookAck{Received: true})
}

// WriteWebhookError maps a pipeline error to its status with a flat
// {"error": msg} body. Logging is left to the pipeline, which already
// records every terminal state.
func WriteWebhookError(w http.ResponseWriter, err error) {
	typed := normalize(err)
	meta := pkgerrors.MetadataFor(typed.Code())
	writeJSON(w, meta.HTTPStatus, WebhookError{Error: publicMessage(typed, meta)})
}

func normalize(err error) *pkgerrors.Error {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	return typed
}

func publicMessage(typed *pkgerrors.Error, meta pkgerrors.Metadata) string {
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeInvalidSignature,
		pkgerrors.CodeEventInProgress,
		pkgerrors.CodeUpstream:
		if m := typed.Message(); m != "" {
			return m
		}
	}
	return meta.PublicMessage
}

func logError(ctx context.Context, logg *logger.Logger, err error) {
	if logg == nil {
		return
	}
	dump := pkgerrors.Dump(err)

	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
	}
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_detail"] = dump.PGDetail
		fields["pg_message"] = dump.PGMessage
		fields["pg_table"] = dump.PGTable
		fields["pg_constraint"] = dump.PGConstraint
	}
	if dump.StripeRequestID != "" || dump.StripeCode != "" {
		fields["stripe_type"] = dump.StripeType
		fields["stripe_code"] = dump.StripeCode
		fields["stripe_request_id"] = dump.StripeRequestID
		fields["stripe_status"] = dump.StripeStatus
	}

	ctx = logg.WithFields(ctx, fields)
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
