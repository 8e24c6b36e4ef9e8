package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stripeapp-backend/api/controllers"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubProcessor struct {
	provider string
	calls    int
}

func (s *stubProcessor) Process(ctx context.Context, provider string, body []byte, header http.Header) (webhooks.Result, error) {
	s.calls++
	s.provider = provider
	return webhooks.Result{State: webhooks.StateAcknowledged}, nil
}

type stubPayments struct {
	payments.Service
}

func (stubPayments) GetCustomer(ctx context.Context, id string) (*payments.CustomerView, error) {
	return &payments.CustomerView{ID: id}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "dev", PublicURL: "https://app.example.com"},
		Webhooks: config.WebhooksConfig{MaxBodyBytes: 1 << 20},
	}
}

func newTestRouter(proc *stubProcessor) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"}))
	return NewRouter(RouterParams{
		Config:          testConfig(),
		Logger:          logger.Nop(),
		Readiness:       map[string]controllers.Pinger{"db": stubPinger{}},
		Webhooks:        proc,
		Payments:        stubPayments{},
		MetricsGatherer: reg,
	})
}

func TestRouterHealth(t *testing.T) {
	h := newTestRouter(&stubProcessor{})
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: expected request id header", path)
		}
	}
}

func TestRouterWebhookPassesProvider(t *testing.T) {
	proc := &stubProcessor{}
	h := newTestRouter(proc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if proc.calls != 1 || proc.provider != "stripe" {
		t.Fatalf("unexpected processor state %+v", proc)
	}
}

func TestRouterWebhookRejectsGet(t *testing.T) {
	h := newTestRouter(&stubProcessor{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRouterPaymentsRoute(t *testing.T) {
	h := newTestRouter(&stubProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/cus_1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatal("expected CORS headers on payment routes")
	}
}

func TestRouterMetrics(t *testing.T) {
	h := newTestRouter(&stubProcessor{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "router_test_total") {
		t.Fatal("expected registered metric in exposition")
	}
}
