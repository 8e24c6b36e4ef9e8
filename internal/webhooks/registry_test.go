package webhooks

import (
	"context"
	"net/http"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

func TestRegistryRoutesByProvider(t *testing.T) {
	handler := &countingHandler{}
	p := newTestPipeline(t, newMemoryClaimStore(), Handlers{PaymentIntentSucceeded: handler}, time.Second)
	reg, err := NewRegistry(p)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	body := eventBody("evt_reg", "payment_intent.succeeded")
	res, err := reg.Process(context.Background(), "Stripe", body, signedHeader(body, testSecret, time.Now()))
	if err != nil || res.State != StateAcknowledged {
		t.Fatalf("expected acknowledged, state=%s err=%v", res.State, err)
	}

	_, err = reg.Process(context.Background(), "paypal", body, http.Header{})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown provider, got %v", err)
	}
}

func TestRegistryRejectsDuplicateProvider(t *testing.T) {
	store := newMemoryClaimStore()
	a := newTestPipeline(t, store, Handlers{}, time.Second)
	b := newTestPipeline(t, store, Handlers{}, time.Second)
	if _, err := NewRegistry(a, b); err == nil {
		t.Fatal("expected duplicate provider to fail")
	}
}

func TestHandlersForCoversEveryKnownKind(t *testing.T) {
	marker := HandlerFunc(func(ctx context.Context, event *VerifiedEvent) error { return nil })
	h := Handlers{
		PaymentIntentSucceeded:  marker,
		PaymentIntentFailed:     marker,
		SubscriptionCreated:     marker,
		SubscriptionUpdated:     marker,
		SubscriptionDeleted:     marker,
		InvoicePaymentSucceeded: marker,
		InvoicePaymentFailed:    marker,
		CustomerCreated:         marker,
		CustomerUpdated:         marker,
	}
	for kind := range kindNames {
		if h.For(kind) == nil {
			t.Fatalf("no handler resolved for %s", kind)
		}
	}
	if h.For(KindUnknown) != nil {
		t.Fatal("KindUnknown must never resolve to a handler")
	}
}

func TestSeverityOf(t *testing.T) {
	if SeverityOf(Fatal(context.Canceled)) != SeverityFatal {
		t.Fatal("expected fatal")
	}
	if SeverityOf(Retryable(context.Canceled)) != SeverityRetryable {
		t.Fatal("expected retryable")
	}
	if SeverityOf(context.DeadlineExceeded) != SeverityRetryable {
		t.Fatal("unclassified errors are retryable")
	}
	if Retryable(nil) != nil || Fatal(nil) != nil {
		t.Fatal("wrapping nil must stay nil")
	}
}
