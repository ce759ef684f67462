// Package main is the entry point for the stockalloc background worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockalloc/internal/app"
	"stockalloc/internal/config"
	appctx "stockalloc/internal/core/context"
	"stockalloc/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Infow("starting stockalloc worker", "storage", cfg.Storage.Driver)

	rt, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		log.Fatalw("bootstrap failed", "error", err)
	}
	defer rt.Close()

	w := NewWorker(rt, log)

	startCtx := appctx.WithActor(ctx, &appctx.Actor{ID: appctx.SystemActor, Name: appctx.SystemActor})
	if reports, err := rt.Services.Allocation.ReconcileAll(startCtx); err != nil {
		log.Errorw("startup reconcile failed", "error", err)
	} else {
		log.Infow("startup reconcile done", "orders_fixed", len(reports))
	}

	w.Run(ctx)
	log.Info("worker stopped")
}
