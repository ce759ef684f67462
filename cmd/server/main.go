// Package main is the entry point for the stockalloc API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockalloc/internal/app"
	"stockalloc/internal/config"
	"stockalloc/internal/domain/auth"
	v1 "stockalloc/internal/infrastructure/http/v1"
	"stockalloc/internal/infrastructure/http/v1/middleware"
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

	ctx := context.Background()
	log.Infow("starting stockalloc server", "storage", cfg.Storage.Driver)

	rt, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		log.Fatalw("bootstrap failed", "error", err)
	}
	defer rt.Close()

	var tokens middleware.TokenValidator
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenService(auth.DefaultConfig(cfg.Auth.JWTSecret))
	} else {
		log.Warn("JWT_SECRET not set, every request runs as the system actor")
	}

	routerCfg := v1.RouterConfig{
		Services:     rt.Services,
		Logger:       log,
		Tokens:       tokens,
		AuthRequired: cfg.Auth.Required,
		Ready:        rt.Ping,
	}
	if rt.Idempotency != nil {
		routerCfg.Idempotency = rt.Idempotency
	}
	router := v1.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
