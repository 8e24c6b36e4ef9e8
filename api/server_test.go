package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

func TestNewServerWriteTimeoutCoversHandlerTimeout(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler(), config.WebhooksConfig{HandlerTimeout: 45 * time.Second})
	if srv.WriteTimeout != 55*time.Second {
		t.Fatalf("expected 55s write timeout, got %v", srv.WriteTimeout)
	}

	srv = NewServer(":0", http.NotFoundHandler(), config.WebhooksConfig{HandlerTimeout: 10 * time.Second})
	if srv.WriteTimeout != 30*time.Second {
		t.Fatalf("expected 30s floor, got %v", srv.WriteTimeout)
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Fatal("expected read header timeout")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), config.WebhooksConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, logger.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
