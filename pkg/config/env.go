package config

// EnvPrefix is passed to envconfig; every field carries an explicit key.
const EnvPrefix = "STRIPEAPP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	IdempotencyBackendPostgres = "postgres"
	IdempotencyBackendRedis    = "redis"

	DefaultToleranceSeconds = 300
)

const (
	EnvAppEnv   = "STRIPEAPP_APP_ENV"
	EnvPort     = "STRIPEAPP_APP_PORT"
	EnvLogLevel = "STRIPEAPP_LOG_LEVEL"

	EnvDBDSN    = "STRIPEAPP_DB_DSN"
	EnvDBDriver = "STRIPEAPP_DB_DRIVER"
	EnvDBHost   = "STRIPEAPP_DB_HOST"
	EnvDBUser   = "STRIPEAPP_DB_USER"
	EnvDBName   = "STRIPEAPP_DB_NAME"

	EnvRedisURL = "STRIPEAPP_REDIS_URL"

	EnvStripeAPIKey           = "STRIPEAPP_STRIPE_API_KEY"
	EnvStripeWebhookSecret    = "STRIPEAPP_STRIPE_WEBHOOK_SECRET"
	EnvStripeEnv              = "STRIPEAPP_STRIPE_ENV"
	EnvStripeToleranceSeconds = "STRIPEAPP_STRIPE_TOLERANCE_SECONDS"

	EnvWebhookIdempotencyBackend = "STRIPEAPP_WEBHOOK_IDEMPOTENCY_BACKEND"
	EnvWebhookHandlerTimeout     = "STRIPEAPP_WEBHOOK_HANDLER_TIMEOUT"
	EnvWebhookClaimLease         = "STRIPEAPP_WEBHOOK_CLAIM_LEASE"

	EnvCronInterval               = "STRIPEAPP_CRON_INTERVAL"
	EnvCronDeliveryRetentionEvery = "STRIPEAPP_CRON_DELIVERY_RETENTION_EVERY"
	EnvCronFatalReportEvery       = "STRIPEAPP_CRON_FATAL_REPORT_EVERY"
	EnvCronOutboxRetentionEvery   = "STRIPEAPP_CRON_OUTBOX_RETENTION_EVERY"
	EnvCronReconcileEvery         = "STRIPEAPP_CRON_RECONCILE_EVERY"

	EnvGCPProjectID = "STRIPEAPP_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
