package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/config"
	"quiz-leaderboard-service/internal/infra/memory"
	"quiz-leaderboard-service/internal/infra/postgres"
	redisstore "quiz-leaderboard-service/internal/infra/redis"
	"quiz-leaderboard-service/internal/metrics"
)

const defaultCacheTTL = 2 * time.Second

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// dependencies holds everything a command built from config and must release.
type dependencies struct {
	service  *app.LeaderboardService
	registry *prometheus.Registry
	closers  []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDependencies(ctx context.Context, cfg config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{registry: prometheus.NewRegistry()}

	store, err := openStore(ctx, cfg, logger, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}

	recorder, err := metrics.New(metrics.WithRegistry(deps.registry))
	if err != nil {
		deps.Close()
		return nil, err
	}

	cache := memory.NewLeaderboardCache(store, config.TTLDuration(cfg.Cache.TTL, defaultCacheTTL))
	deps.service = app.NewLeaderboardService(store,
		app.WithLogger(logger),
		app.WithRecorder(recorder),
		app.WithReader(cache),
		app.WithRetryPolicy(app.RetryPolicy{
			MaxAttempts:    cfg.Commit.MaxAttempts,
			InitialBackoff: config.TTLDuration(cfg.Commit.InitialBackoff, 0),
			MaxBackoff:     config.TTLDuration(cfg.Commit.MaxBackoff, 0),
		}),
	)
	return deps, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger, deps *dependencies) (app.SlotStore, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("using redis slot store", zap.String("addr", cfg.Redis.Addr))
		return redisstore.NewSlotStore(client), nil
	case config.BackendPostgres:
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		deps.closers = append(deps.closers, pool.Close)
		logger.Info("using postgres slot store")
		return postgres.NewSlotStore(pool), nil
	default:
		logger.Warn("using in-memory slot store; leaderboards are lost on restart")
		return memory.NewSlotStore(), nil
	}
}
