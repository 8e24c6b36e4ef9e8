package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Webhooks     WebhooksConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads the environment into a Config. A missing Stripe signing secret
// or API key is a startup failure rather than a per-request error.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Stripe.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Webhooks.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cron.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STRIPEAPP_APP_ENV" required:"true"`
	Port         string `envconfig:"STRIPEAPP_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"STRIPEAPP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"STRIPEAPP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STRIPEAPP_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"STRIPEAPP_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STRIPEAPP_SERVICE_KIND" default:"api"`
	// MetricsAddr is where worker binaries expose /metrics; empty disables it.
	// The api serves /metrics on its own router.
	MetricsAddr string `envconfig:"STRIPEAPP_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"STRIPEAPP_DB_DSN"`
	Driver string `envconfig:"STRIPEAPP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STRIPEAPP_DB_HOST"`
	LegacyPort     int    `envconfig:"STRIPEAPP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STRIPEAPP_DB_USER"`
	LegacyPassword string `envconfig:"STRIPEAPP_DB_PASSWORD"`
	LegacyName     string `envconfig:"STRIPEAPP_DB_NAME"`
	LegacySSLMode  string `envconfig:"STRIPEAPP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STRIPEAPP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STRIPEAPP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STRIPEAPP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STRIPEAPP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver is selected (local development only).
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STRIPEAPP_REDIS_URL"`
	Address      string        `envconfig:"STRIPEAPP_REDIS_ADDR"`
	Password     string        `envconfig:"STRIPEAPP_REDIS_PASSWORD"`
	DB           int           `envconfig:"STRIPEAPP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STRIPEAPP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STRIPEAPP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STRIPEAPP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STRIPEAPP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STRIPEAPP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether any redis endpoint was supplied.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STRIPEAPP_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey           string   `envconfig:"STRIPEAPP_STRIPE_API_KEY"`
	WebhookSecret    string   `envconfig:"STRIPEAPP_STRIPE_WEBHOOK_SECRET"`
	Env              string   `envconfig:"STRIPEAPP_STRIPE_ENV" default:"test"`
	ToleranceSeconds int      `envconfig:"STRIPEAPP_STRIPE_TOLERANCE_SECONDS" default:"300"`
	DefaultCurrency  string   `envconfig:"STRIPEAPP_STRIPE_DEFAULT_CURRENCY" default:"usd"`
	Currencies       []string `envconfig:"STRIPEAPP_STRIPE_SUPPORTED_CURRENCIES" default:"usd,eur,gbp"`
	PortalReturnPath string   `envconfig:"STRIPEAPP_STRIPE_PORTAL_RETURN_PATH" default:"/dashboard"`
	// Idempotent retries of timeouts and 5xx answers done by stripe-go itself.
	MaxNetworkRetries int           `envconfig:"STRIPEAPP_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
	RequestTimeout    time.Duration `envconfig:"STRIPEAPP_STRIPE_REQUEST_TIMEOUT" default:"30s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Tolerance returns the signature timestamp window.
func (s StripeConfig) Tolerance() time.Duration {
	if s.ToleranceSeconds <= 0 {
		return DefaultToleranceSeconds * time.Second
	}
	return time.Duration(s.ToleranceSeconds) * time.Second
}

func (s StripeConfig) validate() error {
	if strings.TrimSpace(s.WebhookSecret) == "" {
		return fmt.Errorf("%s is required", EnvStripeWebhookSecret)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return fmt.Errorf("%s is required", EnvStripeAPIKey)
	}
	return nil
}

// PortalReturnURL is where the billing portal sends customers back to when
// a request does not name one.
func (s StripeConfig) PortalReturnURL(publicURL string) string {
	return strings.TrimRight(strings.TrimSpace(publicURL), "/") + "/" + strings.TrimLeft(strings.TrimSpace(s.PortalReturnPath), "/")
}

type WebhooksConfig struct {
	IdempotencyBackend string        `envconfig:"STRIPEAPP_WEBHOOK_IDEMPOTENCY_BACKEND" default:"postgres"`
	HandlerTimeout     time.Duration `envconfig:"STRIPEAPP_WEBHOOK_HANDLER_TIMEOUT" default:"10s"`
	ClaimLease         time.Duration `envconfig:"STRIPEAPP_WEBHOOK_CLAIM_LEASE" default:"5m"`
	RecordRetention    time.Duration `envconfig:"STRIPEAPP_WEBHOOK_RECORD_RETENTION" default:"720h"`
	MaxBodyBytes       int64         `envconfig:"STRIPEAPP_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

// Backend returns the normalized idempotency backend name.
func (w WebhooksConfig) Backend() string {
	backend := strings.TrimSpace(strings.ToLower(w.IdempotencyBackend))
	if backend == "" {
		return IdempotencyBackendPostgres
	}
	return backend
}

func (w WebhooksConfig) validate() error {
	switch w.Backend() {
	case IdempotencyBackendPostgres, IdempotencyBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvWebhookIdempotencyBackend, IdempotencyBackendPostgres, IdempotencyBackendRedis)
	}
	if w.HandlerTimeout <= 0 {
		return errors.New("webhook handler timeout must be positive")
	}
	// The claim lease must outlast the handler deadline.
	if w.ClaimLease <= w.HandlerTimeout {
		return fmt.Errorf("%s (%s) must exceed %s (%s)", EnvWebhookClaimLease, w.ClaimLease, EnvWebhookHandlerTimeout, w.HandlerTimeout)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STRIPEAPP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STRIPEAPP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STRIPEAPP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"STRIPEAPP_PUBSUB_NOTIFICATION_TOPIC" default:"stripeapp-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STRIPEAPP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STRIPEAPP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STRIPEAPP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STRIPEAPP_OUTBOX_RETENTION_DAYS" default:"30"`
}

// CronConfig sets the worker tick and how often each maintenance job runs.
type CronConfig struct {
	Interval               time.Duration `envconfig:"STRIPEAPP_CRON_INTERVAL" default:"5m"`
	DeliveryRetentionEvery time.Duration `envconfig:"STRIPEAPP_CRON_DELIVERY_RETENTION_EVERY" default:"24h"`
	FatalReportEvery       time.Duration `envconfig:"STRIPEAPP_CRON_FATAL_REPORT_EVERY" default:"1h"`
	OutboxRetentionEvery   time.Duration `envconfig:"STRIPEAPP_CRON_OUTBOX_RETENTION_EVERY" default:"24h"`
	ReconcileEvery         time.Duration `envconfig:"STRIPEAPP_CRON_RECONCILE_EVERY" default:"6h"`
	ReconcileLookback      time.Duration `envconfig:"STRIPEAPP_CRON_RECONCILE_LOOKBACK" default:"168h"`
	ReconcileBatchSize     int           `envconfig:"STRIPEAPP_CRON_RECONCILE_BATCH_SIZE" default:"100"`
}

func (c CronConfig) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%s must be positive", EnvCronInterval)
	}
	cadences := []struct {
		env   string
		every time.Duration
	}{
		{EnvCronDeliveryRetentionEvery, c.DeliveryRetentionEvery},
		{EnvCronFatalReportEvery, c.FatalReportEvery},
		{EnvCronOutboxRetentionEvery, c.OutboxRetentionEvery},
		{EnvCronReconcileEvery, c.ReconcileEvery},
	}
	for _, cadence := range cadences {
		// A job cannot run more often than the worker looks for due jobs.
		if cadence.every < c.Interval {
			return fmt.Errorf("%s (%s) must not be shorter than %s (%s)", cadence.env, cadence.every, EnvCronInterval, c.Interval)
		}
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
