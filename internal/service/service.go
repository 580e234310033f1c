// Package service holds the read-side use cases behind the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nitesh/news_aggregator/pkg/models"
)

const cachePrefix = "news_aggregator:cache:"

// ArticleStore is the subset of the Postgres store the API reads from.
type ArticleStore interface {
	ListArticles(ctx context.Context, f models.ArticleFilter) (models.Page[models.Article], error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	ListSources(ctx context.Context, f models.SourceFilter) (models.Page[models.Source], error)
	ListSyncRuns(ctx context.Context, f models.SyncRunFilter) (models.Page[models.SyncRun], error)
	Categories(ctx context.Context) ([]models.Category, error)
	Languages(ctx context.Context) ([]models.Language, error)
	Countries(ctx context.Context) ([]models.Country, error)
	Ping(ctx context.Context) error
}

type Service struct {
	repo     ArticleStore
	rdb      *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewService wires the read use cases. rdb may be nil, which disables the
// reference-data cache.
func NewService(repo ArticleStore, rdb *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, rdb: rdb, cacheTTL: cacheTTL, logger: logger}
}

func (s *Service) ListArticles(ctx context.Context, f models.ArticleFilter) (models.Page[models.Article], error) {
	return s.repo.ListArticles(ctx, f)
}

func (s *Service) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	return s.repo.GetArticle(ctx, id)
}

func (s *Service) ListSources(ctx context.Context, f models.SourceFilter) (models.Page[models.Source], error) {
	return s.repo.ListSources(ctx, f)
}

func (s *Service) ListSyncRuns(ctx context.Context, f models.SyncRunFilter) (models.Page[models.SyncRun], error) {
	return s.repo.ListSyncRuns(ctx, f)
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return cached(ctx, s, "categories", s.repo.Categories)
}

func (s *Service) Languages(ctx context.Context) ([]models.Language, error) {
	return cached(ctx, s, "languages", s.repo.Languages)
}

func (s *Service) Countries(ctx context.Context) ([]models.Country, error) {
	return cached(ctx, s, "countries", s.repo.Countries)
}

// cached serves key from redis, falling back to load on a miss or any cache
// error. Successful loads are written back with the configured TTL.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return load(ctx)
	}
	full := cachePrefix + key

	raw, err := s.rdb.Get(ctx, full).Bytes()
	switch {
	case err == nil:
		var out []T
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			return out, nil
		}
		s.logger.Warn("discarding corrupt cache entry", "key", full)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("cache read failed, using database", "key", full, "error", err)
	}

	out, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if out == nil {
		out = []T{}
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.rdb.Set(ctx, full, b, s.cacheTTL).Err(); err != nil {
			s.logger.Warn("cache write failed", "key", full, "error", err)
		}
	}
	return out, nil
}

// Health is the result of pinging each backing service.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Health reports "ok" when everything answers, "degraded" when only redis is
// down and "down" when the database is unreachable.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Database: "ok", Redis: "disabled"}
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Error("database ping failed", "error", err)
		h.Database = "unreachable"
		h.Status = "down"
	}
	if s.rdb != nil {
		h.Redis = "ok"
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis ping failed", "error", err)
			h.Redis = "unreachable"
			if h.Status == "ok" {
				h.Status = "degraded"
			}
		}
	}
	return h
}
