package app

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-grocer/internal/config"
	"github.com/noah-isme/backend-grocer/internal/migrate"
	"github.com/noah-isme/backend-grocer/internal/obs"
)

// Options tweaks how the shared dependencies are opened.
type Options struct {
	// AppName is reported to Postgres as application_name.
	AppName      string
	RedisMetrics bool
	// SkipQueue leaves the asynq client and inspector nil.
	SkipQueue bool
}

// Dependencies holds the connections shared by the api, the worker and the tools.
type Dependencies struct {
	Config        *config.Config
	Logger        zerolog.Logger
	DB            *pgxpool.Pool
	Redis         *redis.Client
	Validator     *validator.Validate
	LimiterStore  limiter.Store
	QueueRedis    asynq.RedisConnOpt
	TaskClient    *asynq.Client
	TaskInspector *asynq.Inspector
}

// New opens Postgres and Redis and builds the clients layered on top of them.
// Close must be called when New succeeds.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	deps := &Dependencies{Config: cfg, Logger: logger, Validator: validator.New()}

	pool, err := OpenDatabase(ctx, cfg.DatabaseURL, opts.AppName)
	if err != nil {
		return nil, err
	}
	deps.DB = pool

	rdb, err := OpenRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Redis = rdb

	store, err := NewLimiterStore(rdb)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("init rate limit store: %w", err)
	}
	deps.LimiterStore = store

	if !opts.SkipQueue {
		connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("parse queue redis url: %w", err)
		}
		deps.QueueRedis = connOpt
		deps.TaskClient = asynq.NewClient(connOpt)
		deps.TaskInspector = asynq.NewInspector(connOpt)
	}

	if cfg.MigrateOnStart {
		if err := migrate.Apply(ctx, pool); err != nil {
			deps.Close()
			return nil, err
		}
		logger.Info().Msg("migrations applied")
	}
	return deps, nil
}

// Close releases every connection that was opened.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskInspector != nil {
		if err := d.TaskInspector.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task inspector")
		}
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// OpenDatabase connects a traced pgx pool and pings it.
func OpenDatabase(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if appName != "" {
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenRedis connects an instrumented Redis client and pings it.
func OpenRedis(ctx context.Context, url string, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   "grocer:ratelimit",
		MaxRetry: 3,
	})
}
