package deliveries

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	"github.com/angelmondragon/stripeapp-backend/pkg/config"
)

const (
	defaultLease     = 5 * time.Minute
	defaultRetention = 30 * 24 * time.Hour
)

// Options tunes claim expiry and record retention.
type Options struct {
	// Lease bounds how long an in_progress claim blocks other deliveries.
	// A claimant that crashed mid-handler is taken over after it expires.
	Lease     time.Duration
	Retention time.Duration
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Lease <= 0 {
		o.Lease = defaultLease
	}
	if o.Retention <= 0 {
		o.Retention = defaultRetention
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// claimedAt normalizes the claim's fencing timestamp to the precision both
// backends store.
func claimedAt(claim webhooks.Claim) (time.Time, error) {
	if claim.ClaimedAt.IsZero() {
		return time.Time{}, fmt.Errorf("delivery %s/%s: claim timestamp required", claim.Provider, claim.EventID)
	}
	return claim.ClaimedAt.UTC().Truncate(time.Millisecond), nil
}

// NewStore selects the delivery record backend configured for the service.
func NewStore(backend string, db *gorm.DB, redisClient ScriptRunner, opts Options) (webhooks.ClaimStore, error) {
	switch backend {
	case config.IdempotencyBackendPostgres, "":
		if db == nil {
			return nil, fmt.Errorf("postgres delivery store requires a database")
		}
		return NewPostgresStore(db, opts), nil
	case config.IdempotencyBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis delivery store requires a redis client")
		}
		return NewRedisStore(redisClient, opts), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", backend)
	}
}
