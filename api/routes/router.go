package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stripeapp-backend/api/controllers"
	paymentcontrollers "github.com/angelmondragon/stripeapp-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/stripeapp-backend/api/controllers/webhooks"
	"github.com/angelmondragon/stripeapp-backend/api/middleware"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

// RouterParams lists everything the HTTP surface depends on.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	Readiness       map[string]controllers.Pinger
	Webhooks        webhookcontrollers.Processor
	Payments        payments.Service
	MetricsGatherer prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readiness))
	})

	if params.MetricsGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	// Processors post raw bytes; no body-parsing middleware may run here.
	r.Post("/webhooks/{provider}", webhookcontrollers.Webhook(params.Webhooks, cfg.Webhooks.MaxBodyBytes, logg))

	if params.Payments != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.CORS(cfg.App.PublicURL, cfg.App.CORSAllowedOrigins))

			r.Route("/payment-intents", func(r chi.Router) {
				r.Post("/", paymentcontrollers.CreatePaymentIntent(params.Payments, logg))
				r.Get("/{id}", paymentcontrollers.GetPaymentIntent(params.Payments, logg))
				r.Patch("/{id}", paymentcontrollers.UpdatePaymentIntent(params.Payments, logg))
			})
			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", paymentcontrollers.CreateSubscription(params.Payments, logg))
				r.Get("/{id}", paymentcontrollers.GetSubscription(params.Payments, logg))
				r.Patch("/{id}", paymentcontrollers.UpdateSubscription(params.Payments, logg))
			})
			r.Route("/customers", func(r chi.Router) {
				r.Post("/", paymentcontrollers.CreateCustomer(params.Payments, logg))
				r.Get("/{id}", paymentcontrollers.GetCustomer(params.Payments, logg))
				r.Patch("/{id}", paymentcontrollers.UpdateCustomer(params.Payments, logg))
			})
			r.Post("/billing-portal/sessions", paymentcontrollers.CreatePortalSession(params.Payments, logg))
		})
	}

	return r
}
