package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	corelock "stockalloc/internal/core/lock"
)

const keyPrefix = "stockalloc:lock:"

// Redis is a Locker shared by every server and worker process.
type Redis struct {
	client  *redislock.Client
	backoff time.Duration
}

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings redis.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedis creates a Locker on top of an existing client.
func NewRedis(rdb redislock.RedisClient) *Redis {
	return &Redis{
		client:  redislock.New(rdb),
		backoff: 25 * time.Millisecond,
	}
}

// Obtain implements lock.Locker. Without a ctx deadline redislock stops
// retrying after ttl.
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (corelock.Lock, error) {
	return r.obtain(ctx, key, ttl, redislock.LinearBackoff(r.backoff))
}

// TryObtain implements lock.Locker.
func (r *Redis) TryObtain(ctx context.Context, key string, ttl time.Duration) (corelock.Lock, error) {
	return r.obtain(ctx, key, ttl, redislock.NoRetry())
}

func (r *Redis) obtain(ctx context.Context, key string, ttl time.Duration, retry redislock.RetryStrategy) (corelock.Lock, error) {
	l, err := r.client.Obtain(ctx, keyPrefix+key, ttl, &redislock.Options{RetryStrategy: retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, corelock.ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return &redisLock{lock: l}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (l *redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// expired before release; nothing left to free
		return nil
	}
	return err
}

func (l *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	err := l.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return corelock.ErrNotHeld
	}
	return err
}

var _ corelock.Locker = (*Redis)(nil)
