package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/angelmondragon/stripeapp-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

const webhookPathPrefix = "/webhooks/"

type headerTracker struct {
	http.ResponseWriter
	wrote bool
}

func (h *headerTracker) WriteHeader(status int) {
	h.wrote = true
	h.ResponseWriter.WriteHeader(status)
}

func (h *headerTracker) Write(b []byte) (int, error) {
	h.wrote = true
	return h.ResponseWriter.Write(b)
}

// Recoverer turns a panic into a 500. Webhook routes answer with the flat
// body processors expect so the delivery is retried; API routes get the
// error envelope. Nothing is written once the handler has started a response.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracker := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("panic: %v", rec), "panic")
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"panic":          fmt.Sprint(rec),
						"path":           r.URL.Path,
						"stack":          string(debug.Stack()),
						"response_begun": tracker.wrote,
					})
					logg.Error(ctx, "panic.recovered", err)
				}
				if tracker.wrote {
					return
				}
				if strings.HasPrefix(r.URL.Path, webhookPathPrefix) {
					responses.WriteWebhookError(w, err)
					return
				}
				responses.WriteError(ctx, nil, w, err)
			}()
			next.ServeHTTP(tracker, r)
		})
	}
}
