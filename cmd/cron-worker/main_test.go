package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/db"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/stripeapp-backend/pkg/stripe"
)

type nopGateway struct{ pkgstripe.Gateway }

func testConfig(backend string) *config.Config {
	return &config.Config{
		Webhooks: config.WebhooksConfig{
			IdempotencyBackend: backend,
			HandlerTimeout:     10 * time.Second,
			ClaimLease:         5 * time.Minute,
			RecordRetention:    720 * time.Hour,
		},
		Outbox: config.OutboxConfig{RetentionDays: 30},
		Cron: config.CronConfig{
			Interval:               5 * time.Minute,
			DeliveryRetentionEvery: 24 * time.Hour,
			FatalReportEvery:       time.Hour,
			OutboxRetentionEvery:   24 * time.Hour,
			ReconcileEvery:         6 * time.Hour,
			ReconcileLookback:      168 * time.Hour,
			ReconcileBatchSize:     100,
		},
	}
}

func registeredCadences(t *testing.T, backend string) map[string]time.Duration {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "cron-worker-test"})

	registry, err := buildRegistry(testConfig(backend), logg, db.FromConn(conn), &redis.Client{}, nopGateway{}, nil)
	require.NoError(t, err)

	cadences := make(map[string]time.Duration)
	for _, entry := range registry.Entries() {
		cadences[entry.Job.Name()] = entry.Every
	}
	return cadences
}

func TestBuildRegistryReportsFatalDeliveriesOnRedis(t *testing.T) {
	cadences := registeredCadences(t, config.IdempotencyBackendRedis)

	require.Equal(t, time.Hour, cadences["fatal-delivery-report"])
	require.NotContains(t, cadences, "delivery-retention")
	require.Equal(t, 24*time.Hour, cadences["outbox-retention"])
	require.Equal(t, 6*time.Hour, cadences["subscription-reconcile"])
}

func TestBuildRegistryPrunesAndReportsOnPostgres(t *testing.T) {
	cadences := registeredCadences(t, config.IdempotencyBackendPostgres)

	require.Equal(t, 24*time.Hour, cadences["delivery-retention"])
	require.Equal(t, time.Hour, cadences["fatal-delivery-report"])
	require.Len(t, cadences, 4)
}
