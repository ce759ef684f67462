package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/core/apperror"
)

type countingLocker struct {
	obtained []string
	released int
	err      error
}

type countingLock struct{ l *countingLocker }

func (c countingLock) Release(context.Context) error {
	c.l.released++
	return nil
}

func (c countingLock) Refresh(context.Context, time.Duration) error { return nil }

func (c *countingLocker) Obtain(_ context.Context, key string, _ time.Duration) (Lock, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.obtained = append(c.obtained, key)
	return countingLock{c}, nil
}

func (c *countingLocker) TryObtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	return c.Obtain(ctx, key, ttl)
}

func TestDo_Reentrant(t *testing.T) {
	l := &countingLocker{}
	key := OrderKey("42")

	err := Do(context.Background(), l, key, time.Second, func(ctx context.Context) error {
		return Do(ctx, l, key, time.Second, func(ctx context.Context) error {
			return Do(ctx, l, JobKey("expiry"), time.Second, func(context.Context) error { return nil })
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order:42", "job:expiry"}, l.obtained)
	assert.Equal(t, 2, l.released)
}

func TestDo_Errors(t *testing.T) {
	l := &countingLocker{err: ErrNotObtained}
	err := Do(context.Background(), l, "k", time.Second, func(context.Context) error { return nil })
	assert.True(t, apperror.IsCode(err, apperror.CodeLocked))

	boom := errors.New("redis down")
	l.err = boom
	err = Do(context.Background(), l, "k", time.Second, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, boom)

	l.err = nil
	failed := errors.New("fn failed")
	err = Do(context.Background(), l, "k", time.Second, func(context.Context) error { return failed })
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, 1, l.released)
}

func TestDo_NilLocker(t *testing.T) {
	called := false
	err := Do(context.Background(), nil, "k", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
