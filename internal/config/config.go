// Package config loads process configuration from the environment.
// An optional .env file in the working directory is read first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full runtime configuration shared by server, worker and seed.
type Config struct {
	Env      string `validate:"required"`
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	Storage StorageConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Alloc   AllocationConfig
	Webhook WebhookConfig
	Worker  WorkerConfig
	LockTTL time.Duration `validate:"gt=0"`
	Idem    IdempotencyConfig
}

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	Driver           string        `validate:"oneof=postgres memory"`
	DatabaseURL      string        `validate:"required_if=Driver postgres"`
	MaxConns         int32         `validate:"gte=1"`
	MinConns         int32         `validate:"gte=0,ltefield=MaxConns"`
	StatementTimeout time.Duration `validate:"gte=0"`
	AutoMigrate      bool
}

// RedisConfig enables the distributed locker when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// AuthConfig controls bearer-token actor identification.
type AuthConfig struct {
	JWTSecret string `validate:"required_if=Required true"`
	Required  bool
}

// AllocationConfig tunes the allocation engine.
type AllocationConfig struct {
	EligibilityRule   string
	AllowPartialLines bool
	NearExpiryDays    int `validate:"gte=0"`
}

// WebhookConfig configures outbound event delivery.
type WebhookConfig struct {
	URL     string        `validate:"omitempty,url"`
	Timeout time.Duration `validate:"gt=0"`
	Secret  string
}

// WorkerConfig holds background loop intervals.
type WorkerConfig struct {
	OutboxBatchSize    int           `validate:"gte=1"`
	OutboxPollInterval time.Duration `validate:"gt=0"`
	ExpiryScanInterval time.Duration `validate:"gt=0"`
	QueueInterval      time.Duration `validate:"gt=0"`
	QueueBatchSize     int           `validate:"gte=1"`
	LowStockInterval   time.Duration `validate:"gt=0"`
}

// IdempotencyConfig controls the X-Idempotency-Key middleware.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration `validate:"gt=0"`
}

// Load reads the environment (and .env if present) and validates it.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("APP_PORT", "8080"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Storage: StorageConfig{
			Driver:           getEnv("STORAGE_DRIVER", DriverPostgres),
			DatabaseURL:      os.Getenv("DATABASE_URL"),
			MaxConns:         int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:         int32(getEnvInt("DB_MIN_CONNS", 2)),
			StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
			AutoMigrate:      getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			Required:  getEnvBool("AUTH_REQUIRED", false),
		},
		Alloc: AllocationConfig{
			EligibilityRule:   os.Getenv("FEFO_ELIGIBILITY_RULE"),
			AllowPartialLines: getEnvBool("ALLOW_PARTIAL_LINES", false),
			NearExpiryDays:    getEnvInt("NEAR_EXPIRY_DAYS", 7),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("WEBHOOK_URL"),
			Timeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			Secret:  os.Getenv("WEBHOOK_SECRET"),
		},
		Worker: WorkerConfig{
			OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
			OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
			ExpiryScanInterval: getEnvDuration("EXPIRY_SCAN_INTERVAL", time.Hour),
			QueueInterval:      getEnvDuration("QUEUE_INTERVAL", 30*time.Second),
			QueueBatchSize:     getEnvInt("QUEUE_BATCH_SIZE", 50),
			LowStockInterval:   getEnvDuration("LOW_STOCK_INTERVAL", 15*time.Minute),
		},
		LockTTL: getEnvDuration("LOCK_TTL", 30*time.Second),
		Idem: IdempotencyConfig{
			Enabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
			TTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid fields: %s", strings.Join(fields, ", "))
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
