package ingest

import (
	"context"
	"database/sql"
	"slices"
	"sync"

	"github.com/nitesh/news_aggregator/internal/newsapi"
	"github.com/nitesh/news_aggregator/internal/store"
	"github.com/nitesh/news_aggregator/pkg/models"
)

type fakeUpstream struct {
	mu         sync.Mutex
	sources    []newsapi.SourceRecord
	sourcesErr error
	// keyed by Params.String()
	headlines map[string][]newsapi.ArticleRecord
	failures  map[string]error
	hooks     map[string]func()
	calls     []newsapi.Params
}

func (f *fakeUpstream) ListSources(ctx context.Context) ([]newsapi.SourceRecord, error) {
	if f.sourcesErr != nil {
		return nil, f.sourcesErr
	}
	return f.sources, nil
}

func (f *fakeUpstream) SearchHeadlines(ctx context.Context, p newsapi.Params) (*newsapi.HeadlinesResult, error) {
	key := p.String()
	f.mu.Lock()
	f.calls = append(f.calls, p)
	hook := f.hooks[key]
	err := f.failures[key]
	articles := f.headlines[key]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &newsapi.HeadlinesResult{Articles: articles, TotalResults: len(articles)}, nil
}

func (f *fakeUpstream) callKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		keys = append(keys, c.String())
	}
	slices.Sort(keys)
	return keys
}

// fakeStore mimics the Postgres store's semantics in memory.
type fakeStore struct {
	sources    map[string]store.SourceInput
	articles   map[string]store.ArticleInput
	runs       []models.SyncRun
	replaceErr error
	upsertErr  error
	linksErr   error
	countries  []string
	categories []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:    map[string]store.SourceInput{},
		articles:   map[string]store.ArticleInput{},
		countries:  models.CountryCodes,
		categories: models.CategoryNames,
	}
}

func (s *fakeStore) ReplaceSources(ctx context.Context, sources []store.SourceInput) (int, error) {
	if s.replaceErr != nil {
		return 0, s.replaceErr
	}
	next := map[string]store.SourceInput{}
	for _, src := range sources {
		next[src.SourceID] = src
	}
	s.sources = next
	return len(sources), nil
}

func refID(set []string, v string) sql.NullInt64 {
	idx := slices.Index(set, v)
	if idx < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(idx + 1), Valid: true}
}

func (s *fakeStore) SourceLinksByName(ctx context.Context) (map[string]store.SourceLink, error) {
	if s.linksErr != nil {
		return nil, s.linksErr
	}
	out := map[string]store.SourceLink{}
	for id, src := range s.sources {
		out[src.Name] = store.SourceLink{
			ID:         "pk-" + id,
			Name:       src.Name,
			CategoryID: refID(models.CategoryNames, src.Category),
			LanguageID: refID(models.LanguageCodes, src.Language),
			CountryID:  refID(models.CountryCodes, src.Country),
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertArticles(ctx context.Context, articles []store.ArticleInput) (int, int, error) {
	if s.upsertErr != nil {
		return 0, 0, s.upsertErr
	}
	created, existing := 0, 0
	for _, a := range articles {
		cur, ok := s.articles[a.URL]
		if !ok {
			s.articles[a.URL] = a
			created++
			continue
		}
		if !cur.SourceID.Valid {
			cur.SourceID = a.SourceID
		}
		if !cur.CategoryID.Valid {
			cur.CategoryID = a.CategoryID
		}
		if !cur.LanguageID.Valid {
			cur.LanguageID = a.LanguageID
		}
		if !cur.CountryID.Valid {
			cur.CountryID = a.CountryID
		}
		s.articles[a.URL] = cur
		existing++
	}
	return created, existing, nil
}

func (s *fakeStore) FilterUniverse(ctx context.Context) ([]string, []string, error) {
	return s.countries, s.categories, nil
}

func (s *fakeStore) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.runs = append(s.runs, *run)
	return nil
}

type fakeLocker struct {
	err      error
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}
