package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app"
	"stockalloc/internal/app/apptest"
	"stockalloc/internal/config"
	appctx "stockalloc/internal/core/context"
	corelock "stockalloc/internal/core/lock"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/infrastructure/lock"
	"stockalloc/pkg/logger"
)

func newTestWorker(t *testing.T) (*Worker, *apptest.Env) {
	t.Helper()
	env := apptest.New(t)
	rt := &app.Runtime{
		Config: &config.Config{
			LockTTL: time.Second,
			Worker: config.WorkerConfig{
				OutboxBatchSize:    10,
				OutboxPollInterval: time.Second,
				ExpiryScanInterval: time.Minute,
				QueueInterval:      time.Minute,
				QueueBatchSize:     10,
				LowStockInterval:   time.Minute,
			},
		},
		Services: env.Services,
		Locker:   lock.NewLocal(),
	}
	w := NewWorker(rt, logger.NewNop())
	w.now = func() time.Time { return env.Now }
	return w, env
}

func TestNewWorker_MemoryJobs(t *testing.T) {
	w, _ := newTestWorker(t)
	names := make([]string, len(w.jobs))
	for i, j := range w.jobs {
		names[i] = j.name
	}
	assert.Equal(t, []string{"expiry-scan", "pending-orders", "low-stock"}, names)
}

func TestRunOnce_SkipsHeldJob(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()
	runs := 0
	j := job{name: "sample", interval: time.Minute, run: func(context.Context) error {
		runs++
		return nil
	}}

	held, err := w.locker.TryObtain(ctx, corelock.JobKey("sample"), time.Second)
	require.NoError(t, err)

	assert.False(t, w.runOnce(ctx, j))
	assert.Zero(t, runs)

	require.NoError(t, held.Release(ctx))
	assert.True(t, w.runOnce(ctx, j))
	assert.Equal(t, 1, runs)
}

// refreshingLocker hands out one lock and counts its refreshes. Refresh
// fails once failAfter refreshes have succeeded.
type refreshingLocker struct {
	refreshes atomic.Int32
	failAfter int32
}

func (l *refreshingLocker) Obtain(context.Context, string, time.Duration) (corelock.Lock, error) {
	return l, nil
}

func (l *refreshingLocker) TryObtain(context.Context, string, time.Duration) (corelock.Lock, error) {
	return l, nil
}

func (l *refreshingLocker) Release(context.Context) error { return nil }

func (l *refreshingLocker) Refresh(context.Context, time.Duration) error {
	if l.failAfter > 0 && l.refreshes.Load() >= l.failAfter {
		return corelock.ErrNotHeld
	}
	l.refreshes.Add(1)
	return nil
}

func TestRunOnce_RefreshesLockWhileRunning(t *testing.T) {
	w, _ := newTestWorker(t)
	locker := &refreshingLocker{}
	w.locker = locker
	w.lockTTL = 20 * time.Millisecond

	j := job{name: "slow", interval: time.Minute, run: func(context.Context) error {
		assert.Eventually(t, func() bool { return locker.refreshes.Load() >= 3 }, time.Second, 5*time.Millisecond)
		return nil
	}}
	require.True(t, w.runOnce(context.Background(), j))

	after := locker.refreshes.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, locker.refreshes.Load())
}

func TestRunOnce_LostLockCancelsJob(t *testing.T) {
	w, _ := newTestWorker(t)
	w.locker = &refreshingLocker{failAfter: 1}
	w.lockTTL = 20 * time.Millisecond

	var cancelled atomic.Bool
	j := job{name: "slow", interval: time.Minute, run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}}
	require.True(t, w.runOnce(context.Background(), j))
	assert.True(t, cancelled.Load())
}

func TestScanExpiry(t *testing.T) {
	w, env := newTestWorker(t)
	item := env.Item(t, "SKU-EXP")
	b := env.Batch(t, item, "L1", 5, 1)

	w.now = func() time.Time { return env.Now.AddDate(0, 0, 2) }
	require.True(t, w.runOnce(context.Background(), w.jobs[0]))

	got, err := env.Repos.Batches.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.BatchExpired, got.Status)
}

func TestAllocatePending(t *testing.T) {
	w, env := newTestWorker(t)
	item := env.Item(t, "SKU-Q")
	env.Batch(t, item, "L1", 10, 30)
	o := env.Order(t, apptest.Line(item, 4))

	require.NoError(t, w.allocatePending(env.Ctx()))

	got, err := env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.EqualValues(t, "ALLOCATED", got.Status)
}

func TestReportLowStock(t *testing.T) {
	w, env := newTestWorker(t)
	env.Item(t, "SKU-EMPTY")

	ctx := appctx.WithActor(context.Background(), &appctx.Actor{Name: appctx.SystemActor})
	require.NoError(t, w.reportLowStock(ctx))

	notes, err := env.Notifications.List(ctx, appctx.SystemActor, 10)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	assert.Contains(t, notes[0].Message, "SKU-EMPTY")
}
