package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelock "stockalloc/internal/core/lock"
)

func TestLocal_TryObtainHeld(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	held, err := l.TryObtain(ctx, "order:1", time.Second)
	require.NoError(t, err)

	_, err = l.TryObtain(ctx, "order:1", time.Second)
	assert.ErrorIs(t, err, corelock.ErrNotObtained)

	other, err := l.TryObtain(ctx, "order:2", time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))
	again, err := l.TryObtain(ctx, "order:1", time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
	assert.Empty(t, l.slots)
}

func TestLocal_ObtainHonoursContext(t *testing.T) {
	l := NewLocal()
	held, err := l.Obtain(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Obtain(ctx, "k", time.Second)
	assert.ErrorIs(t, err, corelock.ErrNotObtained)
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk, err := l.Obtain(ctx, "shared", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lk.Release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}
