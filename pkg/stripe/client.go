package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stripeapp-backend/pkg/config"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

const (
	testMode = "test"
	liveMode = "live"

	appName = "stripeapp-backend"
)

var (
	errAPIKeyRequired  = errors.New("stripe api key is required")
	errSecretRequired  = errors.New("stripe webhook secret is required")
	errInvalidMode     = fmt.Errorf("stripe environment must be %q or %q", testMode, liveMode)
	errPublishableKey  = errors.New("stripe publishable keys (pk_) cannot call the API; use a secret or restricted key")
	errMalformedSecret = errors.New("stripe webhook secret must start with whsec")
)

// Client holds the Stripe API client together with the mode its key was
// issued for and the endpoint signing secret.
type Client struct {
	api           *stripe.Client
	mode          string
	restricted    bool
	signingSecret string
}

// NewClient checks that the key and secret belong to the configured mode and
// builds an API client that retries network failures and logs through logg.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.RequestTimeout},
		MaxNetworkRetries: stripe.Int64(int64(cfg.MaxNetworkRetries)),
		LeveledLogger:     leveledLogger(logg),
	})
	return newClient(ctx, cfg, logg, stripe.WithBackends(backends))
}

func newClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger, opts ...stripe.ClientOption) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	restricted, err := checkKeyMode(mode, apiKey)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !strings.HasPrefix(secret, "whsec") {
		return nil, errMalformedSecret
	}

	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})
	client := &Client{
		api:           stripe.NewClient(apiKey, opts...),
		mode:          mode,
		restricted:    restricted,
		signingSecret: secret,
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_mode":       mode,
			"stripe_restricted": restricted,
		}), "stripe client ready")
	}
	return client, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports whether the key is a test or live mode key.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// Restricted reports whether the API key is a restricted (rk_) key, whose
// permissions may not cover every gateway call.
func (c *Client) Restricted() bool {
	return c != nil && c.restricted
}

// SigningSecret returns the webhook endpoint signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func parseMode(raw string) (string, error) {
	mode := strings.TrimSpace(strings.ToLower(raw))
	switch mode {
	case "":
		return testMode, nil
	case testMode, liveMode:
		return mode, nil
	}
	return "", errInvalidMode
}

// checkKeyMode rejects keys issued for the other mode, so a staging deploy
// never charges real cards, and reports whether the key is restricted.
func checkKeyMode(mode, key string) (bool, error) {
	if strings.HasPrefix(key, "pk_") {
		return false, errPublishableKey
	}
	for _, kind := range []string{"sk", "rk"} {
		if strings.HasPrefix(key, kind+"_"+mode) {
			return kind == "rk", nil
		}
	}
	return false, fmt.Errorf("stripe environment %q requires a %s secret key (sk_%s_ or rk_%s_)", mode, mode, mode, mode)
}

// stripeLogger routes stripe-go's own request logging into the service
// logger. Stripe reports declines and other 4xx answers at error level; those
// are ordinary outcomes surfaced to callers, so they are logged as warnings.
type stripeLogger struct {
	logg *logger.Logger
}

func leveledLogger(logg *logger.Logger) stripe.LeveledLoggerInterface {
	if logg == nil {
		return &stripe.LeveledLogger{Level: stripe.LevelNull}
	}
	return stripeLogger{logg: logg}
}

func (s stripeLogger) Debugf(format string, v ...interface{}) {
	s.logg.Debug(context.Background(), fmt.Sprintf(format, v...))
}

func (s stripeLogger) Infof(format string, v ...interface{}) {
	s.logg.Debug(context.Background(), fmt.Sprintf(format, v...))
}

func (s stripeLogger) Warnf(format string, v ...interface{}) {
	s.logg.Warn(context.Background(), fmt.Sprintf(format, v...))
}

func (s stripeLogger) Errorf(format string, v ...interface{}) {
	s.logg.Warn(context.Background(), fmt.Sprintf(format, v...))
}
