package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stripe/stripe-go/v84"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeInvalidSignature, status: http.StatusBadRequest, publicMsg: "invalid webhook signature"},
		{code: CodeEventInProgress, status: http.StatusConflict, publicMsg: "event is being processed", retryable: true},
		{code: CodeHandlerRetryable, status: http.StatusInternalServerError, publicMsg: "webhook handler failed", retryable: true},
		{code: CodeHandlerFatal, status: http.StatusInternalServerError, publicMsg: "webhook handler failed"},
		{code: CodeUpstream, status: http.StatusBadGateway, publicMsg: "payment provider error", retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestCodeOfFollowsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeInvalidSignature, "bad sig"))
	if got := CodeOf(err); got != CodeInvalidSignature {
		t.Fatalf("expected invalid signature, got %s", got)
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("expected internal for untyped error, got %s", got)
	}
}

func TestDumpCapturesDriverFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_webhook_deliveries_event"}
	d := Dump(Wrap(CodeDependency, pgErr, "claim failed"))
	if d.Code != CodeDependency || d.PGCode != "23505" || d.PGConstraint != "uq_webhook_deliveries_event" {
		t.Fatalf("unexpected dump %+v", d)
	}

	stripeErr := &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeResourceMissing, HTTPStatusCode: 404, RequestID: "req_1"}
	d = Dump(Wrap(CodeUpstream, stripeErr, "retrieve failed"))
	if d.StripeCode != string(stripe.ErrorCodeResourceMissing) || d.StripeStatus != 404 || d.StripeRequestID != "req_1" {
		t.Fatalf("unexpected stripe dump %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeNotFound, "no entry")
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
