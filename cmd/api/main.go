package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/stripeapp-backend/api"
	"github.com/angelmondragon/stripeapp-backend/api/controllers"
	"github.com/angelmondragon/stripeapp-backend/api/routes"
	"github.com/angelmondragon/stripeapp-backend/internal/billing"
	"github.com/angelmondragon/stripeapp-backend/internal/deliveries"
	"github.com/angelmondragon/stripeapp-backend/internal/notifications"
	"github.com/angelmondragon/stripeapp-backend/internal/payments"
	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	stripewebhook "github.com/angelmondragon/stripeapp-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
	"github.com/angelmondragon/stripeapp-backend/pkg/migrate"
	"github.com/angelmondragon/stripeapp-backend/pkg/outbox"
	"github.com/angelmondragon/stripeapp-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/stripeapp-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	// Load fails when the webhook signing secret is missing.
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	readiness := map[string]controllers.Pinger{"database": dbClient}

	var scripts deliveries.ScriptRunner
	if cfg.Redis.Configured() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		scripts = redisClient
		readiness["redis"] = redisClient
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}
	gateway, err := pkgstripe.NewGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe gateway", err)
		os.Exit(1)
	}

	claims, err := deliveries.NewStore(cfg.Webhooks.Backend(), dbClient.DB(), scripts, deliveries.Options{
		Lease:     cfg.Webhooks.ClaimLease,
		Retention: cfg.Webhooks.RecordRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery store", err)
		os.Exit(1)
	}

	notifier, err := notifications.NewNotifier(outbox.NewService(outbox.NewRepository(dbClient.DB()), logg))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	stripeHandlers, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billing.NewRepository(dbClient.DB()),
		Notifier:          notifier,
		TransactionRunner: dbClient,
		Subscriptions:     gateway,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	verifier, err := webhooks.NewStripeVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.Tolerance())
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe verifier", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline, err := webhooks.NewPipeline(webhooks.PipelineParams{
		Provider:       webhooks.ProviderStripe,
		Verifier:       verifier,
		Claims:         claims,
		Handlers:       stripeHandlers.Handlers(),
		HandlerTimeout: cfg.Webhooks.HandlerTimeout,
		Logger:         logg,
		Metrics:        metrics.NewWebhookMetrics(promRegistry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook pipeline", err)
		os.Exit(1)
	}
	webhookRegistry, err := webhooks.NewRegistry(pipeline)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook registry", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Gateway:             gateway,
		DefaultCurrency:     cfg.Stripe.DefaultCurrency,
		SupportedCurrencies: cfg.Stripe.Currencies,
		PortalReturnURL:     cfg.Stripe.PortalReturnURL(cfg.App.PublicURL),
		Logger:              logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    id,
		"stripe_env":  stripeClient.Environment(),
		"idempotency": cfg.Webhooks.Backend(),
	})
	logg.Info(ctx, "starting api server")

	server := api.NewServer(addr, routes.NewRouter(routes.RouterParams{
		Config:          cfg,
		Logger:          logg,
		Readiness:       readiness,
		Webhooks:        webhookRegistry,
		Payments:        paymentsService,
		MetricsGatherer: promRegistry,
	}), cfg.Webhooks)

	if err := api.Run(ctx, server, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
