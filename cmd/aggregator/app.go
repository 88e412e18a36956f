package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"deal_aggregator/internal/breaker"
	"deal_aggregator/internal/cache"
	"deal_aggregator/internal/config"
	"deal_aggregator/internal/fallback"
	"deal_aggregator/internal/metrics"
	"deal_aggregator/internal/normalize"
	"deal_aggregator/internal/publisher"
	"deal_aggregator/internal/service"
	"deal_aggregator/internal/source/cheapshark"
	"deal_aggregator/internal/source/itad"
	"deal_aggregator/internal/storage/postgres"
)

// app holds the wired pipeline and the optional infrastructure behind it.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Registry
	db         *sqlx.DB
	runs       *postgres.RunStore
	redis      *redis.Client
	publisher  *publisher.RabbitMQ
	aggregator *service.AggregateService
	cache      *cache.Cache
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func connectDB(cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Host, "dbname", cfg.DBName)
	return db, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewRegistry()}

	var (
		runs      service.RunStore
		txManager service.TransactionManager
		pub       service.Publisher
	)

	if cfg.Database.Enabled {
		db, err := connectDB(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := postgres.Migrate(db, logger); err != nil {
			a.Close()
			return nil, err
		}
		a.runs = postgres.NewRunStore(db)
		runs = a.runs
		txManager = postgres.NewTransactionManager(db)
	}

	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.publisher = rabbitMQ
		pub = rabbitMQ
	}

	var store cache.Store = cache.NewMemoryStore()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		store = cache.NewRedisStore(client, cfg.Redis.Key, cfg.Cache.Retention)
		logger.Info("using redis cache", "addr", cfg.Redis.Addr, "key", cfg.Redis.Key)
	}

	table := normalize.ExpiryTableFromConfig(cfg.Expiry)

	a.aggregator = service.NewAggregateService(
		buildSources(cfg, table, a.metrics, logger),
		runs,
		txManager,
		pub,
		fallback.NewLoader(table),
		a.metrics,
		logger,
		cfg.Aggregate,
	)
	a.cache = cache.New(store, a.aggregator, cfg.Cache.TTL, nil, a.metrics, logger)

	return a, nil
}

func buildSources(cfg *config.Config, table normalize.ExpiryTable, m *metrics.Registry, logger *slog.Logger) []service.Source {
	var sources []service.Source

	if cs := cfg.Sources.CheapShark; !cs.Disabled {
		src := cheapshark.New(cheapshark.ConfigFrom(cs, cfg.Sources.UserAgent, table), logger, m)
		sources = append(sources, breaker.Wrap(src, breaker.ConfigFrom(cs.Breaker), m, logger))
	}
	if it := cfg.Sources.ITAD; !it.Disabled {
		src := itad.New(itad.ConfigFrom(it, cfg.Sources.UserAgent, table), logger, m)
		sources = append(sources, breaker.Wrap(src, breaker.ConfigFrom(it.Breaker), m, logger))
	}

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	logger.Info("configured sources", "sources", names)

	return sources
}

func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
