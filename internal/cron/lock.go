package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 30 * time.Minute

// Lock coordinates exclusive cron ticks across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore defines the operations used by RedisLock and GatedJob.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock if this instance still owns it. A lock that already
// expired, or was claimed by another instance since, is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.client.CompareAndDelete(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.owner = ""
	return nil
}

// GatedJob runs the wrapped job at most once per cadence across all instances.
// The last-run marker is a Redis key whose TTL equals the cadence.
type GatedJob struct {
	Job
	store   redisStore
	key     string
	cadence time.Duration
	now     func() time.Time
}

// Every wraps job so it only becomes due once cadence has elapsed since its last start.
func Every(job Job, cadence time.Duration, store redisStore, key string) (*GatedJob, error) {
	if job == nil {
		return nil, errors.New("job required")
	}
	if store == nil {
		return nil, errors.New("redis client required for job gate")
	}
	if key == "" {
		return nil, errors.New("gate key is required")
	}
	if cadence <= 0 {
		return nil, fmt.Errorf("cadence for %s must be positive", job.Name())
	}
	return &GatedJob{Job: job, store: store, key: key, cadence: cadence, now: time.Now}, nil
}

// Due claims the current cadence window. It reports false while a previous
// run's marker is still alive.
func (g *GatedJob) Due(ctx context.Context) (bool, error) {
	ok, err := g.store.SetNX(ctx, g.key, g.now().UTC().Format(time.RFC3339), g.cadence)
	if err != nil {
		return false, fmt.Errorf("claim %s window: %w", g.Name(), err)
	}
	return ok, nil
}

// Cadence returns the configured interval.
func (g *GatedJob) Cadence() time.Duration { return g.cadence }
