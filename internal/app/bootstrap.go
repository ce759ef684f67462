package app

import (
	"context"
	"fmt"

	"stockalloc/internal/config"
	corelock "stockalloc/internal/core/lock"
	"stockalloc/internal/domain/fefo"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/infrastructure/lock"
	"stockalloc/internal/infrastructure/storage/memory"
	"stockalloc/internal/infrastructure/storage/postgres"
	"stockalloc/pkg/logger"
)

// Runtime is a process-wide service graph with the resources behind it.
type Runtime struct {
	Config   *config.Config
	Services *Services
	Locker   corelock.Locker

	// Set on the postgres driver only.
	Pool        *postgres.Pool
	TxManager   *postgres.TxManager
	Idempotency *postgres.IdempotencyStore

	// Set on the memory driver only.
	Memory *memory.Store

	closers []func()
}

// Bootstrap connects the configured storage and locker and wires the services.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	rule, err := fefo.CompileRule(cfg.Alloc.EligibilityRule)
	if err != nil {
		return nil, err
	}

	if err := rt.openLocker(ctx); err != nil {
		return nil, err
	}

	opts := Options{
		Locker:            rt.Locker,
		LockTTL:           cfg.LockTTL,
		Rule:              rule,
		AllowPartialLines: cfg.Alloc.AllowPartialLines,
		NearExpiryDays:    cfg.Alloc.NearExpiryDays,
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		st := memory.New()
		rt.Memory = st
		opts.TxManager = st
		opts.Repos = MemoryRepositories(st)
		opts.Publisher = st.Repositories().Events
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")

	default:
		pub, err := rt.openPostgres(ctx, &opts)
		if err != nil {
			rt.Close()
			return nil, err
		}
		opts.Publisher = pub
	}

	rt.Services = New(opts)
	return rt, nil
}

func (rt *Runtime) openLocker(ctx context.Context) error {
	if rt.Config.Redis.Addr == "" {
		rt.Locker = lock.NewLocal()
		return nil
	}
	rdb, err := lock.NewRedisClient(ctx, lock.RedisConfig{
		Addr:     rt.Config.Redis.Addr,
		Password: rt.Config.Redis.Password,
		DB:       rt.Config.Redis.DB,
	})
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	rt.Locker = lock.NewRedis(rdb)
	logger.Info(ctx, "distributed locking enabled", "redis", rt.Config.Redis.Addr)
	return nil
}

func (rt *Runtime) openPostgres(ctx context.Context, opts *Options) (notify.Publisher, error) {
	sc := rt.Config.Storage
	poolCfg := postgres.DefaultPoolConfig(sc.DatabaseURL)
	poolCfg.MaxConns = sc.MaxConns
	poolCfg.MinConns = sc.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, pool.Close)

	if sc.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
	}

	codec, err := postgres.NewMetaCodec(0)
	if err != nil {
		return nil, err
	}

	rt.TxManager = postgres.NewTxManager(pool, sc.StatementTimeout)
	if rt.Config.Idem.Enabled {
		rt.Idempotency = postgres.NewIdempotencyStore(rt.TxManager, rt.Config.Idem.TTL)
	}

	opts.TxManager = rt.TxManager
	opts.Repos = PostgresRepositories(rt.TxManager, codec)
	return postgres.NewOutboxPublisher(rt.TxManager), nil
}

// Ping reports whether the storage backend is reachable.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt.Pool == nil {
		return nil
	}
	if err := rt.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
