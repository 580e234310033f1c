package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/nitesh/news_aggregator/internal/config"
	"github.com/nitesh/news_aggregator/internal/fanout"
	"github.com/nitesh/news_aggregator/internal/ingest"
	"github.com/nitesh/news_aggregator/internal/lock"
	"github.com/nitesh/news_aggregator/internal/logging"
	"github.com/nitesh/news_aggregator/internal/newsapi"
	"github.com/nitesh/news_aggregator/internal/store"
)

// app holds the connections shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	rdb    *redis.Client
	store  *store.PgStore
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	if err := waitForDB(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed, cache and sync locks degraded", "addr", cfg.Redis.Addr, "error", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		store:  store.NewPgStore(db),
	}, nil
}

// waitForDB retries the initial ping while the database container starts.
func waitForDB(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	var err error
	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		logger.Info("waiting for db", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("could not connect to db: %w", err)
}

func (a *app) migrate() error {
	return store.RunMigrations(a.cfg.Database.DSN())
}

func (a *app) pipeline() *ingest.Pipeline {
	if a.cfg.NewsAPI.APIKey == "" {
		a.logger.Warn("NEWS_API_KEY is not set, upstream calls will be rejected")
	}
	client := newsapi.NewClient(
		a.cfg.NewsAPI.BaseURL,
		a.cfg.NewsAPI.APIKey,
		&http.Client{Timeout: a.cfg.NewsAPI.Timeout},
		a.logger.With("component", "newsapi"),
	)
	return ingest.NewPipeline(ingest.PipelineDeps{
		Upstream:    client,
		Store:       a.store,
		Locker:      lock.NewLocker(a.rdb, a.cfg.Sync.LockTTL),
		Sampler:     fanout.NewSampler(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
		Logger:      a.logger.With("component", "ingest"),
		Concurrency: a.cfg.Sync.Concurrency,
	})
}

func headlinesRequest(c config.SyncConfig) ingest.HeadlinesRequest {
	return ingest.HeadlinesRequest{
		Countries:        c.Countries,
		Categories:       c.Categories,
		Sources:          c.Sources,
		Query:            c.Query,
		Language:         c.Language,
		SampleCountries:  c.SampleCountries,
		SampleCategories: c.SampleCategories,
	}
}

func (a *app) Close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("redis close", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("db close", "error", err)
	}
}
