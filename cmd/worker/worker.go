package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockalloc/internal/app"
	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/lock"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/infrastructure/storage/postgres"
	"stockalloc/internal/infrastructure/webhook"
	"stockalloc/pkg/logger"
)

// publishedRetention is how long delivered outbox rows are kept.
const publishedRetention = 7 * 24 * time.Hour

const poolStatsInterval = time.Minute

// job is one periodic task. Only one replica runs a job at a time.
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// Worker runs the periodic jobs of one process.
type Worker struct {
	rt      *app.Runtime
	log     *logger.Logger
	locker  lock.Locker
	lockTTL time.Duration
	now     func() time.Time
	jobs    []job
}

// NewWorker builds the job list from the runtime's configuration.
func NewWorker(rt *app.Runtime, log *logger.Logger) *Worker {
	w := &Worker{
		rt:      rt,
		log:     log.WithComponent("worker"),
		locker:  rt.Locker,
		lockTTL: rt.Config.LockTTL,
		now:     time.Now,
	}
	wc := rt.Config.Worker

	w.jobs = append(w.jobs,
		job{name: "expiry-scan", interval: wc.ExpiryScanInterval, run: w.scanExpiry},
		job{name: "pending-orders", interval: wc.QueueInterval, run: w.allocatePending},
		job{name: "low-stock", interval: wc.LowStockInterval, run: w.reportLowStock},
	)

	if rt.TxManager != nil {
		if url := rt.Config.Webhook.URL; url != "" {
			handler := webhook.New(webhook.Config{
				URL:     url,
				Secret:  rt.Config.Webhook.Secret,
				Timeout: rt.Config.Webhook.Timeout,
			})
			relay := postgres.NewOutboxRelay(rt.TxManager, wc.OutboxBatchSize, postgres.DefaultMaxRetries, handler)
			w.jobs = append(w.jobs,
				job{name: "outbox-relay", interval: wc.OutboxPollInterval, run: relayJob(relay)},
				job{name: "outbox-cleanup", interval: time.Hour, run: outboxCleanupJob(relay)},
			)
		} else {
			w.log.Warn("WEBHOOK_URL not set, outbox events stay undelivered")
		}
	}
	if rt.Pool != nil {
		w.jobs = append(w.jobs, job{name: "pool-stats", interval: poolStatsInterval, run: func(ctx context.Context) error {
			postgres.LogPoolStats(ctx, rt.Pool.Pool)
			return nil
		}})
	}
	if rt.Idempotency != nil {
		w.jobs = append(w.jobs, job{name: "idempotency-cleanup", interval: time.Hour, run: func(ctx context.Context) error {
			n, err := rt.Idempotency.CleanupExpired(ctx)
			if n > 0 {
				logger.Info(ctx, "cleaned up idempotency keys", "count", n)
			}
			return err
		}})
	}
	return w
}

// Run starts every job loop and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range w.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			w.loop(ctx, j)
		}(j)
	}
	names := make([]string, len(w.jobs))
	for i, j := range w.jobs {
		names[i] = j.name
	}
	w.log.Infow("worker started", "jobs", strings.Join(names, ","))
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx, j)
		}
	}
}

// runOnce runs j if no other replica holds its lock. It reports whether the
// job ran.
func (w *Worker) runOnce(ctx context.Context, j job) bool {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: appctx.SystemActor, Name: appctx.SystemActor})

	held, err := w.locker.TryObtain(ctx, lock.JobKey(j.name), w.lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		logger.Debug(ctx, "job skipped, held by another worker", "job", j.name)
		return false
	}
	if err != nil {
		logger.Error(ctx, "job lock failed", "job", j.name, "error", err)
		return false
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()

	// the lock is refreshed while the job runs; losing it stops the job
	jobCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.keepAlive(jobCtx, cancel, held, j.name)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	start := time.Now()
	if err := j.run(jobCtx); err != nil {
		logger.Error(ctx, "job failed", "job", j.name, "error", err)
		return true
	}
	logger.Debug(ctx, "job done", "job", j.name, "took_ms", time.Since(start).Milliseconds())
	return true
}

// keepAlive refreshes held every half TTL until ctx is done. A failed
// refresh cancels the job.
func (w *Worker) keepAlive(ctx context.Context, cancel context.CancelFunc, held lock.Lock, name string) {
	ticker := time.NewTicker(w.lockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := held.Refresh(ctx, w.lockTTL); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn(ctx, "job lock lost, stopping job", "job", name, "error", err)
				cancel()
				return
			}
		}
	}
}

func (w *Worker) scanExpiry(ctx context.Context) error {
	res, err := w.rt.Services.Expiry.Scan(ctx, appctx.SystemActor, w.now())
	if err != nil {
		return err
	}
	if res.ExpiredCount > 0 || res.NearExpiryCount > 0 {
		logger.Info(ctx, "expiry scan", "expired", res.ExpiredCount, "near_expiry", res.NearExpiryCount)
	}
	return nil
}

func (w *Worker) allocatePending(ctx context.Context) error {
	rep, err := w.rt.Services.Allocation.AllocatePending(ctx, w.rt.Config.Worker.QueueBatchSize)
	if err != nil {
		return err
	}
	if rep.Processed > 0 {
		logger.Info(ctx, "pending orders processed",
			"processed", rep.Processed, "allocated", rep.Allocated, "partial", rep.Partial, "failed", rep.Failed)
	}
	return nil
}

func (w *Worker) reportLowStock(ctx context.Context) error {
	low, err := w.rt.Services.Inventory.LowStock(ctx)
	if err != nil || len(low) == 0 {
		return err
	}
	skus := make([]string, len(low))
	for i, l := range low {
		skus[i] = l.SKU
	}
	msg := fmt.Sprintf("%d item(s) at or below reorder threshold: %s", len(low), strings.Join(skus, ", "))
	return w.rt.Services.Notifications.Notify(ctx, appctx.SystemActor, msg, notify.LevelWarning)
}

func relayJob(relay *postgres.OutboxRelay) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := relay.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Debug(ctx, "outbox delivered", "count", n)
		}
		moved, err := relay.MoveToDLQ(ctx)
		if moved > 0 {
			logger.Warn(ctx, "outbox messages moved to DLQ", "count", moved)
		}
		return err
	}
}

func outboxCleanupJob(relay *postgres.OutboxRelay) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := relay.PurgePublished(ctx, publishedRetention)
		if n > 0 {
			logger.Info(ctx, "purged delivered outbox messages", "count", n)
		}
		return err
	}
}
