package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 20 * time.Second
)

// NewServer returns the HTTP server cmd/api runs. The write timeout leaves
// room for the webhook handler timeout plus the outcome write.
func NewServer(addr string, handler http.Handler, cfg config.WebhooksConfig) *http.Server {
	writeTimeout := 30 * time.Second
	if needed := cfg.HandlerTimeout + 10*time.Second; needed > writeTimeout {
		writeTimeout = needed
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests so
// claimed deliveries can record their outcome.
func Run(ctx context.Context, srv *http.Server, logg *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
