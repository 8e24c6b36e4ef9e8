package webhooks

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	ProviderStripe        = "stripe"
	StripeSignatureHeader = "Stripe-Signature"
)

// Verifier turns a raw delivery into a VerifiedEvent. It performs no I/O.
type Verifier interface {
	Verify(body []byte, header http.Header, receivedAt time.Time) (*VerifiedEvent, error)
}

// StripeVerifier checks the Stripe-Signature header against the endpoint's
// signing secret. The keyed-hash comparison and the stale-timestamp check are
// delegated to stripe-go; timestamps too far in the future are rejected here.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string, tolerance time.Duration) (*StripeVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe webhook signing secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeVerifier{secret: secret, tolerance: tolerance}, nil
}

func (v *StripeVerifier) Verify(body []byte, header http.Header, receivedAt time.Time) (*VerifiedEvent, error) {
	signature := header.Get(StripeSignatureHeader)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "missing Stripe-Signature header")
	}

	if ts, ok := signedTimestamp(signature); ok && ts.Sub(receivedAt) > v.tolerance {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature timestamp is in the future")
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "signature verification failed")
	}
	if event.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is missing")
	}

	verified := &VerifiedEvent{
		provider:   ProviderStripe,
		id:         event.ID,
		rawType:    string(event.Type),
		kind:       ParseEventKind(string(event.Type)),
		created:    time.Unix(event.Created, 0).UTC(),
		livemode:   event.Livemode,
		apiVersion: event.APIVersion,
		receivedAt: receivedAt,
		verified:   true,
	}
	if event.Data != nil {
		verified.object = event.Data.Raw
		verified.fields = event.Data.Object
	}
	return verified, nil
}

// signedTimestamp extracts t= from a Stripe-Signature header.
func signedTimestamp(header string) (time.Time, bool) {
	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || key != "t" {
			continue
		}
		secs, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}
