// Package lock defines named mutual exclusion used around whole-order
// operations and single-runner background jobs.
//
// Batch quantities are serialized by the storage layer (row locks); the
// Locker only prevents two callers from driving the same order at once.
package lock

import (
	"context"
	"errors"
	"time"

	"stockalloc/internal/core/apperror"
)

// ErrNotObtained is returned when the lock is held elsewhere.
var ErrNotObtained = errors.New("lock: not obtained")

// ErrNotHeld is returned by Refresh once the lock has expired.
var ErrNotHeld = errors.New("lock: not held")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error

	// Refresh extends the lock to ttl from now.
	Refresh(ctx context.Context, ttl time.Duration) error
}

// Locker hands out named locks.
type Locker interface {
	// Obtain waits for key until ctx is done.
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)

	// TryObtain returns ErrNotObtained immediately when key is held.
	TryObtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// OrderKey names the lock guarding one order.
func OrderKey(orderID string) string {
	return "order:" + orderID
}

// JobKey names the lock guarding a background job.
func JobKey(job string) string {
	return "job:" + job
}

type heldKey struct{ key string }

// Do runs fn while holding key. Nested Do calls for a key already held by
// ctx run fn directly. A nil locker runs fn unguarded.
//
// ErrNotObtained is reported as a RESOURCE_LOCKED AppError.
func Do(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil || ctx.Value(heldKey{key}) != nil {
		return fn(ctx)
	}

	held, err := l.Obtain(ctx, key, ttl)
	if errors.Is(err, ErrNotObtained) {
		return apperror.NewLocked(key)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()

	return fn(context.WithValue(ctx, heldKey{key}, true))
}
