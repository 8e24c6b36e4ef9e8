package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stripeapp-backend/internal/billing"
	"github.com/angelmondragon/stripeapp-backend/internal/cron"
	"github.com/angelmondragon/stripeapp-backend/internal/deliveries"
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
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	leaser, err := cron.NewRedisLeaser(redisClient, leasePrefix(redisClient, cfg.App.Env))
	if err != nil {
		logg.Error(context.Background(), "failed to create cron leaser", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient, gateway, metricsCollector)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Leaser:   leaser,
		Metrics:  metricsCollector,
		Tick:     cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Entries()),
	})
	logg.Info(ctx, "starting cron worker")

	if addr := cfg.Service.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, prometheus.DefaultGatherer, logg); err != nil {
				logg.Error(ctx, "metrics listener stopped", err)
			}
		}()
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, gateway pkgstripe.Gateway, m *metrics.CronJobMetrics) (*cron.Registry, error) {
	registry := cron.NewRegistry()

	opts := deliveries.Options{
		Lease:     cfg.Webhooks.ClaimLease,
		Retention: cfg.Webhooks.RecordRetention,
	}
	var fatalLister cron.FatalDeliveryLister
	if cfg.Webhooks.Backend() == config.IdempotencyBackendRedis {
		// Settled Redis records expire through their own TTL.
		fatalLister = deliveries.NewRedisStore(redisClient, opts)
	} else {
		store := deliveries.NewPostgresStore(dbClient.DB(), opts)
		retention, err := cron.NewDeliveryRetentionJob(cron.DeliveryRetentionJobParams{
			Logger:     logg,
			Repository: store,
			Metrics:    m,
			Retention:  store.Retention(),
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(retention, cfg.Cron.DeliveryRetentionEvery); err != nil {
			return nil, err
		}
		fatalLister = store
	}

	report, err := cron.NewFatalDeliveryReportJob(cron.FatalDeliveryReportJobParams{
		Logger:     logg,
		Repository: fatalLister,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(report, cfg.Cron.FatalReportEvery); err != nil {
		return nil, err
	}

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Metrics:    m,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(outboxRetention, cfg.Cron.OutboxRetentionEvery); err != nil {
		return nil, err
	}

	reconcile, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:   logg,
		Repo:     billing.NewRepository(dbClient.DB()),
		Gateway:  gateway,
		Metrics:  m,
		Limit:    cfg.Cron.ReconcileBatchSize,
		Lookback: cfg.Cron.ReconcileLookback,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(reconcile, cfg.Cron.ReconcileEvery); err != nil {
		return nil, err
	}
	return registry, nil
}

// leasePrefix scopes job leases per environment so staging and production
// workers sharing a Redis never block each other.
func leasePrefix(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron:" + env)
}
