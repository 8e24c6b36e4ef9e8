package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Leaser hands out per-job run leases shared by every cron worker. A lease
// held for a job's cadence marks it as recently run; releasing it early
// makes the job due again on the next tick.
type Leaser interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLeaser stores one SETNX key per job under prefix, valued with the
// holder's token.
type RedisLeaser struct {
	client leaseStore
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLeaser(client leaseStore, prefix string) (*RedisLeaser, error) {
	if client == nil {
		return nil, errors.New("redis client required for job leases")
	}
	if prefix == "" {
		return nil, errors.New("lease key prefix is required")
	}
	return &RedisLeaser{client: client, prefix: prefix, tokens: make(map[string]string)}, nil
}

func (l *RedisLeaser) key(job string) string {
	return l.prefix + ":" + job
}

func (l *RedisLeaser) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lease %s: ttl must be positive", job)
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(job), token, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", job, err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[job] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release drops the lease only while this worker still holds it.
func (l *RedisLeaser) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	token, held := l.tokens[job]
	delete(l.tokens, job)
	l.mu.Unlock()
	if !held {
		return nil
	}
	current, err := l.client.Get(ctx, l.key(job))
	if errors.Is(err, redis.Nil) || (err == nil && current != token) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lease %s: %w", job, err)
	}
	if err := l.client.Del(ctx, l.key(job)); err != nil {
		return fmt.Errorf("release lease %s: %w", job, err)
	}
	return nil
}
