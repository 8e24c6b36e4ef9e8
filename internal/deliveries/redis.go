package deliveries

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stripeapp-backend/internal/webhooks"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// ScriptRunner is the subset of pkg/redis.Client the store needs.
type ScriptRunner interface {
	RunScript(ctx context.Context, script *goredis.Script, keys []string, args ...any) (any, error)
	DeliveryKey(provider, eventID string) string
	FatalDeliveriesKey() string
}

const (
	claimResultClaimed    = 1
	claimResultSucceeded  = 2
	claimResultInProgress = 3
)

// KEYS[1] = delivery hash
// ARGV = claimed_ms, lease_ms, ttl_ms, event_type, provider, event_id
var claimScript = goredis.NewScript(`
local outcome = redis.call('HGET', KEYS[1], 'outcome')
if not outcome then
  redis.call('HSET', KEYS[1], 'outcome', 'in_progress', 'claimed_at', ARGV[1], 'attempts', 1,
    'event_type', ARGV[4], 'provider', ARGV[5], 'event_id', ARGV[6])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return 1
end
if outcome == 'success' then
  return 2
end
local claimed_at = tonumber(redis.call('HGET', KEYS[1], 'claimed_at') or '0')
if outcome == 'failed' or (outcome == 'in_progress' and claimed_at < tonumber(ARGV[1]) - tonumber(ARGV[2])) then
  redis.call('HSET', KEYS[1], 'outcome', 'in_progress', 'claimed_at', ARGV[1])
  redis.call('HDEL', KEYS[1], 'processed_at')
  redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return 1
end
return 3
`)

// KEYS[1] = delivery hash, KEYS[2] = fatal index
// ARGV = claimed_ms, now_ms, ttl_ms
var markSucceededScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'outcome') ~= 'in_progress' or redis.call('HGET', KEYS[1], 'claimed_at') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'outcome', 'success', 'processed_at', ARGV[2], 'fatal', 0)
redis.call('HDEL', KEYS[1], 'last_error')
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('ZREM', KEYS[2], KEYS[1])
return 1
`)

// Fatal records lose their TTL and join the fatal index until an operator
// deletes them or a later delivery succeeds.
//
// KEYS[1] = delivery hash, KEYS[2] = fatal index
// ARGV = claimed_ms, now_ms, ttl_ms, reason, fatal
var markFailedScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'outcome') ~= 'in_progress' or redis.call('HGET', KEYS[1], 'claimed_at') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'outcome', 'failed', 'processed_at', ARGV[2], 'last_error', ARGV[4], 'fatal', ARGV[5])
if ARGV[5] == '1' then
  redis.call('PERSIST', KEYS[1])
  redis.call('ZADD', KEYS[2], ARGV[2], KEYS[1])
else
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  redis.call('ZREM', KEYS[2], KEYS[1])
end
return 1
`)

// Returns key, fields pairs for fatal records, oldest first. Index entries
// whose record is gone or resolved are dropped; re-claimed records stay.
//
// KEYS[1] = fatal index
// ARGV = limit
var listFatalScript = goredis.NewScript(`
local out = {}
for _, key in ipairs(redis.call('ZRANGE', KEYS[1], 0, tonumber(ARGV[1]) - 1)) do
  local outcome = redis.call('HGET', key, 'outcome')
  if outcome == 'failed' and redis.call('HGET', key, 'fatal') == '1' then
    table.insert(out, key)
    table.insert(out, redis.call('HGETALL', key))
  elseif outcome ~= 'in_progress' then
    redis.call('ZREM', KEYS[1], key)
  end
end
return out
`)

// RedisStore keeps one hash per delivery. Every transition is a Lua script,
// which Redis executes atomically. Settled hashes expire after the retention
// window; fatal ones are kept and indexed for operators.
type RedisStore struct {
	client ScriptRunner
	opts   Options
}

func NewRedisStore(client ScriptRunner, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts.withDefaults()}
}

func (s *RedisStore) TryClaim(ctx context.Context, claim webhooks.Claim) (webhooks.ClaimOutcome, error) {
	at, err := claimedAt(claim)
	if err != nil {
		return 0, err
	}
	key := s.client.DeliveryKey(claim.Provider, claim.EventID)
	raw, err := s.client.RunScript(ctx, claimScript, []string{key},
		at.UnixMilli(),
		s.opts.Lease.Milliseconds(),
		s.opts.Retention.Milliseconds(),
		claim.EventType,
		claim.Provider,
		claim.EventID,
	)
	if err != nil {
		return 0, fmt.Errorf("claim delivery %s/%s: %w", claim.Provider, claim.EventID, err)
	}
	code, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("claim delivery %s/%s: unexpected script result %T", claim.Provider, claim.EventID, raw)
	}
	switch code {
	case claimResultClaimed:
		return webhooks.Claimed, nil
	case claimResultSucceeded:
		return webhooks.AlreadySucceeded, nil
	case claimResultInProgress:
		return webhooks.InProgressElsewhere, nil
	default:
		return 0, fmt.Errorf("claim delivery %s/%s: unknown script result %d", claim.Provider, claim.EventID, code)
	}
}

func (s *RedisStore) MarkSucceeded(ctx context.Context, claim webhooks.Claim) error {
	at, err := claimedAt(claim)
	if err != nil {
		return err
	}
	return s.transition(ctx, claim, markSucceededScript,
		at.UnixMilli(),
		s.opts.Now().UnixMilli(),
		s.opts.Retention.Milliseconds(),
	)
}

func (s *RedisStore) MarkFailed(ctx context.Context, claim webhooks.Claim, failure webhooks.Failure) error {
	at, err := claimedAt(claim)
	if err != nil {
		return err
	}
	fatal := 0
	if failure.Fatal {
		fatal = 1
	}
	return s.transition(ctx, claim, markFailedScript,
		at.UnixMilli(),
		s.opts.Now().UnixMilli(),
		s.opts.Retention.Milliseconds(),
		failure.Reason,
		fatal,
	)
}

func (s *RedisStore) transition(ctx context.Context, claim webhooks.Claim, script *goredis.Script, args ...any) error {
	keys := []string{s.client.DeliveryKey(claim.Provider, claim.EventID), s.client.FatalDeliveriesKey()}
	raw, err := s.client.RunScript(ctx, script, keys, args...)
	if err != nil {
		return fmt.Errorf("complete delivery %s/%s: %w", claim.Provider, claim.EventID, err)
	}
	if applied, _ := raw.(int64); applied == 0 {
		return fmt.Errorf("complete delivery %s/%s: %w", claim.Provider, claim.EventID, webhooks.ErrClaimLost)
	}
	return nil
}

// ListFatal returns unresolved fatal deliveries, oldest first.
func (s *RedisStore) ListFatal(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := s.client.RunScript(ctx, listFatalScript, []string{s.client.FatalDeliveriesKey()}, limit)
	if err != nil {
		return nil, fmt.Errorf("list fatal deliveries: %w", err)
	}
	pairs, ok := raw.([]any)
	if !ok || len(pairs)%2 != 0 {
		return nil, fmt.Errorf("list fatal deliveries: unexpected script result %T", raw)
	}
	rows := make([]models.WebhookDelivery, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields, ok := pairs[i+1].([]any)
		if !ok {
			return nil, fmt.Errorf("list fatal deliveries: unexpected fields %T", pairs[i+1])
		}
		rows = append(rows, deliveryFromHash(fields))
	}
	return rows, nil
}

func deliveryFromHash(fields []any) models.WebhookDelivery {
	values := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		name, _ := fields[i].(string)
		value, _ := fields[i+1].(string)
		values[name] = value
	}
	row := models.WebhookDelivery{
		Provider:  values["provider"],
		EventID:   values["event_id"],
		EventType: values["event_type"],
		Outcome:   enums.DeliveryOutcome(values["outcome"]),
		Fatal:     values["fatal"] == "1",
		ClaimedAt: millisToTime(values["claimed_at"]),
	}
	row.Attempts, _ = strconv.Atoi(values["attempts"])
	if processed := millisToTime(values["processed_at"]); !processed.IsZero() {
		row.ProcessedAt = &processed
	}
	if reason, ok := values["last_error"]; ok {
		row.LastError = &reason
	}
	return row
}

func millisToTime(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
