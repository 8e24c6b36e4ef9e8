package webhooks

import (
	"net/http"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

func TestStripeVerifierAcceptsSignedPayload(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()
	body := eventBody("evt_1", "payment_intent.succeeded")

	event, err := v.Verify(body, signedHeader(body, testSecret, now), now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !event.SignatureValid() {
		t.Fatal("expected signature to be marked valid")
	}
	if event.ID() != "evt_1" || event.Kind() != KindPaymentIntentSucceeded || event.Provider() != ProviderStripe {
		t.Fatalf("unexpected event %s %v %s", event.ID(), event.Kind(), event.Provider())
	}
	if !event.Created().Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected created %v", event.Created())
	}
	if got := event.Field("metadata", "order"); got != "42" {
		t.Fatalf("expected nested field lookup, got %q", got)
	}
	if got := event.Field("amount"); got != "2000" {
		t.Fatalf("expected numeric field as string, got %q", got)
	}
	var obj struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
	}
	if err := event.Decode(&obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj.ID != "pi_123" || obj.Amount != 2000 {
		t.Fatalf("unexpected decoded object %+v", obj)
	}
}

func TestStripeVerifierIsDeterministic(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()
	body := eventBody("evt_det", "customer.created")

	first, errFirst := v.Verify(body, signedHeader(body, testSecret, now), now)
	second, errSecond := v.Verify(body, signedHeader(body, testSecret, now), now)
	if errFirst != nil || errSecond != nil {
		t.Fatalf("expected both verifications to pass: %v / %v", errFirst, errSecond)
	}
	if first.ID() != second.ID() || first.Kind() != second.Kind() || string(first.Object()) != string(second.Object()) {
		t.Fatal("re-signing the same body produced a different result")
	}
}

func TestStripeVerifierRejectsTamperedBody(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()
	body := eventBody("evt_tamper", "payment_intent.succeeded")
	header := signedHeader(body, testSecret, now)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		if _, err := v.Verify(tampered, header, now); err == nil {
			t.Fatalf("mutating byte %d should fail verification", i)
		}
	}
}

func TestStripeVerifierRejectsStaleTimestamp(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()
	body := eventBody("evt_stale", "payment_intent.succeeded")

	_, err := v.Verify(body, signedHeader(body, testSecret, now.Add(-301*time.Second)), now)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidSignature {
		t.Fatalf("expected invalid signature for stale timestamp, got %v", err)
	}
}

func TestStripeVerifierRejectsFutureTimestamp(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()
	body := eventBody("evt_future", "payment_intent.succeeded")

	_, err := v.Verify(body, signedHeader(body, testSecret, now.Add(10*time.Minute)), now)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidSignature {
		t.Fatalf("expected invalid signature for future timestamp, got %v", err)
	}
}

func TestStripeVerifierRejectsWrongSecretAndMissingHeader(t *testing.T) {
	v := newTestVerifier(t)
	now := time.Now()
	body := eventBody("evt_secret", "payment_intent.succeeded")

	if _, err := v.Verify(body, signedHeader(body, "whsec_other", now), now); pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidSignature {
		t.Fatalf("expected wrong secret to be rejected, got %v", err)
	}
	if _, err := v.Verify(body, http.Header{}, now); pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidSignature {
		t.Fatalf("expected missing header to be rejected, got %v", err)
	}
}

func TestNewStripeVerifierRequiresSecret(t *testing.T) {
	if _, err := NewStripeVerifier(" ", time.Minute); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}

func TestParseEventKind(t *testing.T) {
	cases := map[string]EventKind{
		"payment_intent.succeeded":      KindPaymentIntentSucceeded,
		"payment_intent.payment_failed": KindPaymentIntentFailed,
		"customer.subscription.deleted": KindSubscriptionDeleted,
		"invoice.payment_failed":        KindInvoicePaymentFailed,
		"customer.updated":              KindCustomerUpdated,
		"some.unrecognized.type":        KindUnknown,
		"":                              KindUnknown,
	}
	for raw, want := range cases {
		if got := ParseEventKind(raw); got != want {
			t.Fatalf("ParseEventKind(%q) = %v, want %v", raw, got, want)
		}
		if want.Known() && want.String() != raw {
			t.Fatalf("expected %v to render as %q", want, raw)
		}
	}
	if KindUnknown.Known() || KindUnknown.String() != "unknown" {
		t.Fatal("KindUnknown should not be known")
	}
}
