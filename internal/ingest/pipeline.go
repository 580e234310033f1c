// Package ingest pulls sources and headlines from the upstream API and
// reconciles them into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/nitesh/news_aggregator/internal/fanout"
	"github.com/nitesh/news_aggregator/internal/lock"
	"github.com/nitesh/news_aggregator/internal/newsapi"
	"github.com/nitesh/news_aggregator/internal/store"
	"github.com/nitesh/news_aggregator/pkg/models"
)

// ErrInvalidRequest marks a headline request rejected before any call.
var ErrInvalidRequest = errors.New("invalid headline request")

// Upstream is the news API as seen by the pipeline.
type Upstream interface {
	ListSources(ctx context.Context) ([]newsapi.SourceRecord, error)
	SearchHeadlines(ctx context.Context, p newsapi.Params) (*newsapi.HeadlinesResult, error)
}

type Store interface {
	ReplaceSources(ctx context.Context, sources []store.SourceInput) (int, error)
	SourceLinksByName(ctx context.Context) (map[string]store.SourceLink, error)
	UpsertArticles(ctx context.Context, articles []store.ArticleInput) (created, existing int, err error)
	FilterUniverse(ctx context.Context) (countries, categories []string, err error)
	SaveSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Locker grants single-flight access per sync kind.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// PipelineDeps wires the pipeline. Locker and Sampler are optional.
type PipelineDeps struct {
	Upstream    Upstream
	Store       Store
	Locker      Locker
	Sampler     *fanout.Sampler
	Logger      *slog.Logger
	Concurrency int
	Now         func() time.Time
}

type Pipeline struct {
	upstream    Upstream
	store       Store
	locker      Locker
	sampler     *fanout.Sampler
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		upstream:    deps.Upstream,
		store:       deps.Store,
		locker:      deps.Locker,
		sampler:     deps.Sampler,
		logger:      deps.Logger,
		concurrency: deps.Concurrency,
		now:         deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Report is the outcome of one sync. Err aggregates every failure that was
// logged and tolerated during the run; it is nil for a clean run.
type Report struct {
	Run models.SyncRun
	Err error
}

// HeadlinesRequest describes which headlines to pull. Positive sample counts
// replace Countries and Categories with a random draw (0 draws the full set
// for that axis).
type HeadlinesRequest struct {
	Countries        []string
	Categories       []string
	Sources          []string
	Query            string
	Language         string
	SampleCountries  int
	SampleCategories int
}

func (r HeadlinesRequest) Validate() error {
	if r.SampleCountries < 0 || r.SampleCategories < 0 {
		return fmt.Errorf("%w: sample counts must not be negative", ErrInvalidRequest)
	}
	for _, c := range r.Categories {
		if !slices.Contains(models.CategoryNames, c) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, c)
		}
	}
	for _, group := range [][]string{r.Countries, r.Sources} {
		for _, v := range group {
			if v == "" {
				return fmt.Errorf("%w: empty filter value", ErrInvalidRequest)
			}
		}
	}
	return nil
}

func (r HeadlinesRequest) sampling() bool {
	return r.SampleCountries > 0 || r.SampleCategories > 0
}

type runState struct {
	run  models.SyncRun
	errs *multierror.Error
}

func (s *runState) fail(err error) {
	s.errs = multierror.Append(s.errs, err)
	s.run.Errors = append(s.run.Errors, err.Error())
}

// begin takes the kind's lock. It returns a nil release and skip=true when
// another run holds it. Lock backend failures degrade to an unlocked run.
func (p *Pipeline) begin(ctx context.Context, kind string) (release func(), skip bool) {
	noop := func() {}
	if p.locker == nil {
		return noop, false
	}
	unlock, err := p.locker.Acquire(ctx, kind)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, true
	}
	if err != nil {
		p.logger.Warn("sync lock unavailable, running unlocked", "kind", kind, "error", err)
		return noop, false
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("sync lock release failed", "kind", kind, "error", err)
		}
	}, false
}

func (p *Pipeline) finish(ctx context.Context, st *runState, status string) *Report {
	st.run.Status = status
	st.run.FinishedAt = p.now()
	if err := p.store.SaveSyncRun(context.WithoutCancel(ctx), &st.run); err != nil {
		p.logger.Error("record sync run failed", "kind", st.run.Kind, "error", err)
	}
	p.logger.Info("sync finished",
		"kind", st.run.Kind,
		"status", st.run.Status,
		"created", st.run.Created,
		"existing", st.run.Existing,
		"discarded", st.run.Discarded,
		"calls", st.run.Calls,
		"failed_calls", st.run.FailedCalls,
		"duration", st.run.FinishedAt.Sub(st.run.StartedAt),
	)
	return &Report{Run: st.run, Err: st.errs.ErrorOrNil()}
}

// SyncSources replaces the stored sources with the upstream list. An
// upstream failure or an empty list leaves the table untouched.
func (p *Pipeline) SyncSources(ctx context.Context) *Report {
	st := &runState{run: models.SyncRun{Kind: models.SyncKindSources, StartedAt: p.now()}}

	release, skip := p.begin(ctx, models.SyncKindSources)
	if skip {
		p.logger.Info("source sync already running, skipping")
		return p.finish(ctx, st, models.SyncStatusSkipped)
	}
	defer release()

	st.run.Calls = 1
	records, err := p.upstream.ListSources(ctx)
	if err != nil {
		st.run.FailedCalls = 1
		st.fail(fmt.Errorf("list sources: %w", err))
		p.logger.Error("fetch sources failed", "error", err)
		return p.finish(ctx, st, models.SyncStatusFailed)
	}

	inputs, skipped := toSourceInputs(records)
	st.run.Discarded = skipped
	if len(inputs) == 0 {
		st.run.Errors = append(st.run.Errors, "upstream returned no usable sources")
		p.logger.Warn("upstream returned no usable sources, keeping existing rows", "received", len(records))
		return p.finish(ctx, st, models.SyncStatusSkipped)
	}

	n, err := p.store.ReplaceSources(ctx, inputs)
	if err != nil {
		st.fail(fmt.Errorf("replace sources: %w", err))
		p.logger.Error("save sources failed", "error", err)
		return p.finish(ctx, st, models.SyncStatusFailed)
	}
	st.run.Created = n
	return p.finish(ctx, st, models.SyncStatusOK)
}

// SyncHeadlines fans the request out into upstream calls, merges the results
// by URL (first occurrence wins) and get-or-creates the articles. The only
// returned error is request validation; everything else lands in the Report.
func (p *Pipeline) SyncHeadlines(ctx context.Context, req HeadlinesRequest) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	st := &runState{run: models.SyncRun{Kind: models.SyncKindHeadlines, StartedAt: p.now()}}

	plan, err := p.plan(ctx, req)
	if errors.Is(err, newsapi.ErrInvalidParams) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err != nil {
		st.fail(err)
		p.logger.Error("resolve headline filters failed", "error", err)
		return p.finish(ctx, st, models.SyncStatusFailed), nil
	}

	release, skip := p.begin(ctx, models.SyncKindHeadlines)
	if skip {
		p.logger.Info("headline sync already running, skipping")
		return p.finish(ctx, st, models.SyncStatusSkipped), nil
	}
	defer release()

	batches := p.fetch(ctx, plan, st)
	st.run.Calls = len(plan)
	if st.run.FailedCalls == len(plan) {
		return p.finish(ctx, st, models.SyncStatusFailed), nil
	}

	merged, dropped := mergeByURL(batches)
	st.run.Discarded = dropped

	links, err := p.store.SourceLinksByName(ctx)
	if err != nil {
		// articles are still stored, just without source links
		p.logger.Warn("load sources for linking failed", "error", err)
		links = nil
	}

	inputs := make([]store.ArticleInput, 0, len(merged))
	for _, rec := range merged {
		in, ok := toArticleInput(rec, links)
		if !ok {
			st.run.Discarded++
			continue
		}
		inputs = append(inputs, in)
	}

	created, existing, err := p.store.UpsertArticles(ctx, inputs)
	if err != nil {
		st.fail(fmt.Errorf("save articles: %w", err))
		p.logger.Error("save articles failed", "error", err, "articles", len(inputs))
		return p.finish(ctx, st, models.SyncStatusFailed), nil
	}
	st.run.Created = created
	st.run.Existing = existing

	status := models.SyncStatusOK
	if st.run.FailedCalls > 0 {
		status = models.SyncStatusPartial
	}
	return p.finish(ctx, st, status), nil
}

// plan resolves the effective filters and returns the calls to make.
func (p *Pipeline) plan(ctx context.Context, req HeadlinesRequest) ([]newsapi.Params, error) {
	countries, categories := req.Countries, req.Categories
	if req.sampling() {
		allCountries, allCategories, err := p.store.FilterUniverse(ctx)
		if err != nil {
			return nil, fmt.Errorf("load filter universe: %w", err)
		}
		countries, categories = p.sampler.SampleFilters(allCountries, allCategories, req.SampleCountries, req.SampleCategories)
	}

	combos := fanout.BuildCombinations(countries, categories, req.Sources)
	if len(combos) == 0 {
		combos = []newsapi.Params{{PageSize: newsapi.MaxPageSize}}
	}
	for i := range combos {
		combos[i].Query = req.Query
		combos[i].Language = req.Language
		if err := combos[i].Validate(); err != nil {
			return nil, err
		}
	}
	return combos, nil
}

// fetch issues every call with at most p.concurrency in flight. Results are
// returned in plan order regardless of completion order.
func (p *Pipeline) fetch(ctx context.Context, plan []newsapi.Params, st *runState) [][]newsapi.ArticleRecord {
	batches := make([][]newsapi.ArticleRecord, len(plan))
	errs := make([]error, len(plan))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, params := range plan {
		g.Go(func() error {
			res, err := p.upstream.SearchHeadlines(ctx, params)
			if err != nil {
				errs[i] = err
				return nil
			}
			batches[i] = res.Articles
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		st.run.FailedCalls++
		st.fail(fmt.Errorf("headlines %s: %w", plan[i], err))
		p.logger.Warn("headline call failed, continuing", "params", plan[i].String(), "error", err)
	}
	return batches
}
