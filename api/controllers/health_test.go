package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	w := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-StripeApp-Env"); got != "dev" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestHealthReadyAllOK(t *testing.T) {
	cfg := &config.Config{}
	deps := map[string]Pinger{"db": stubPinger{}, "redis": nil}
	w := httptest.NewRecorder()
	HealthReady(cfg, nil, deps).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Status != "ready" || body.Data.Checks["db"] != "ok" {
		t.Fatalf("unexpected body %+v", body.Data)
	}
	if _, ok := body.Data.Checks["redis"]; ok {
		t.Fatal("nil pinger should be skipped")
	}
}

func TestHealthReadyDependencyDown(t *testing.T) {
	cfg := &config.Config{}
	deps := map[string]Pinger{"db": stubPinger{err: errors.New("connection refused")}}
	w := httptest.NewRecorder()
	HealthReady(cfg, nil, deps).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
