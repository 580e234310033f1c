package ingest

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/nitesh/news_aggregator/internal/fanout"
	"github.com/nitesh/news_aggregator/internal/lock"
	"github.com/nitesh/news_aggregator/internal/newsapi"
	"github.com/nitesh/news_aggregator/pkg/models"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(up *fakeUpstream, st *fakeStore, locker Locker, concurrency int) *Pipeline {
	deps := PipelineDeps{
		Upstream:    up,
		Store:       st,
		Sampler:     fanout.NewSampler(rand.New(rand.NewPCG(1, 1))),
		Concurrency: concurrency,
		Now:         func() time.Time { return fixedNow },
	}
	if locker != nil {
		deps.Locker = locker
	}
	return NewPipeline(deps)
}

func article(url, title, published, source string) newsapi.ArticleRecord {
	return newsapi.ArticleRecord{
		URL:         url,
		Title:       title,
		PublishedAt: published,
		Description: "d",
		Source:      newsapi.ArticleSource{Name: source},
	}
}

func TestSyncHeadlinesDeduplicatesAcrossBatches(t *testing.T) {
	up := &fakeUpstream{headlines: map[string][]newsapi.ArticleRecord{
		"country=us": {article("https://x/a", "first", "2025-05-01T10:00:00Z", "")},
		"country=fr": {
			article("https://x/a", "second", "2025-05-01T10:00:00Z", ""),
			article("https://x/b", "other", "2025-05-01T11:00:00Z", ""),
		},
	}}
	st := newFakeStore()
	p := newTestPipeline(up, st, nil, 1)

	report, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{Countries: []string{"us", "fr"}})
	if err != nil {
		t.Fatalf("SyncHeadlines error: %v", err)
	}
	if len(st.articles) != 2 {
		t.Fatalf("expected 2 stored articles, got %d", len(st.articles))
	}
	if got := st.articles["https://x/a"].Title; got != "first" {
		t.Fatalf("first occurrence must win, got title %q", got)
	}
	if report.Run.Created != 2 || report.Run.Existing != 0 {
		t.Fatalf("unexpected counts %+v", report.Run)
	}
	if report.Run.Status != models.SyncStatusOK || report.Err != nil {
		t.Fatalf("expected clean run, got %s %v", report.Run.Status, report.Err)
	}

	// a second run over the same data creates nothing new
	report, _ = p.SyncHeadlines(context.Background(), HeadlinesRequest{Countries: []string{"us", "fr"}})
	if len(st.articles) != 2 || report.Run.Created != 0 || report.Run.Existing != 2 {
		t.Fatalf("rerun should only hit existing rows: %+v (%d rows)", report.Run, len(st.articles))
	}
	if len(st.runs) != 2 {
		t.Fatalf("expected two journal entries, got %d", len(st.runs))
	}
}

func TestSyncHeadlinesDiscardsMalformedRecords(t *testing.T) {
	noDescription := article("https://x/ok", "kept", "2025-05-01T10:00:00Z", "")
	noDescription.Description = ""
	up := &fakeUpstream{headlines: map[string][]newsapi.ArticleRecord{
		"unfiltered": {
			noDescription,
			article("https://x/no-date", "dropped", "", ""),
			article("https://x/bad-date", "dropped", "yesterday", ""),
			article("https://x/no-title", "  ", "2025-05-01T10:00:00Z", ""),
			article("", "no url", "2025-05-01T10:00:00Z", ""),
		},
	}}
	st := newFakeStore()
	p := newTestPipeline(up, st, nil, 1)

	report, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{})
	if err != nil {
		t.Fatalf("SyncHeadlines error: %v", err)
	}
	if len(st.articles) != 1 {
		t.Fatalf("expected only the valid article, got %d", len(st.articles))
	}
	if _, ok := st.articles["https://x/ok"]; !ok {
		t.Fatal("article missing only a description must be stored")
	}
	if report.Run.Discarded != 4 {
		t.Fatalf("expected 4 discarded, got %d", report.Run.Discarded)
	}
	if report.Err != nil {
		t.Fatalf("discarding is not an error: %v", report.Err)
	}
}

func TestSyncHeadlinesDenormalizesFromSource(t *testing.T) {
	up := &fakeUpstream{headlines: map[string][]newsapi.ArticleRecord{
		"sources=techcrunch": {article("https://x/tc", "tc", "2025-05-01T10:00:00Z", "TechCrunch")},
	}}
	st := newFakeStore()
	st.sources["techcrunch"] = storeSource("techcrunch", "TechCrunch", "technology", "en", "us")
	p := newTestPipeline(up, st, nil, 1)

	if _, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{Sources: []string{"techcrunch"}}); err != nil {
		t.Fatalf("SyncHeadlines error: %v", err)
	}
	a := st.articles["https://x/tc"]
	if !a.SourceID.Valid || a.SourceID.String != "pk-techcrunch" {
		t.Fatalf("article not linked to source: %+v", a.SourceID)
	}
	wantCategory := refID(models.CategoryNames, "technology")
	if a.CategoryID != wantCategory {
		t.Fatalf("expected category copied from source, got %+v", a.CategoryID)
	}
	if a.CountryID != refID(models.CountryCodes, "us") || a.LanguageID != refID(models.LanguageCodes, "en") {
		t.Fatalf("expected language/country copied from source: %+v", a)
	}
}

func TestSyncHeadlinesSupplementsMissingLinksOnly(t *testing.T) {
	up := &fakeUpstream{headlines: map[string][]newsapi.ArticleRecord{
		"unfiltered": {article("https://x/a", "changed title", "2025-05-01T10:00:00Z", "TechCrunch")},
	}}
	st := newFakeStore()
	st.articles["https://x/a"] = storeArticle("https://x/a", "original title")
	st.sources["techcrunch"] = storeSource("techcrunch", "TechCrunch", "technology", "", "")
	p := newTestPipeline(up, st, nil, 1)

	report, _ := p.SyncHeadlines(context.Background(), HeadlinesRequest{})
	a := st.articles["https://x/a"]
	if a.Title != "original title" {
		t.Fatalf("existing fields must not be overwritten, got %q", a.Title)
	}
	if !a.CategoryID.Valid {
		t.Fatal("missing category should be supplemented")
	}
	if report.Run.Existing != 1 || report.Run.Created != 0 {
		t.Fatalf("unexpected counts %+v", report.Run)
	}
}

func TestSyncHeadlinesPartialFailure(t *testing.T) {
	up := &fakeUpstream{
		headlines: map[string][]newsapi.ArticleRecord{
			"country=fr": {article("https://x/fr", "fr", "2025-05-01T10:00:00Z", "")},
		},
		failures: map[string]error{"country=us": errors.New("rate limited")},
	}
	st := newFakeStore()
	p := newTestPipeline(up, st, nil, 1)

	report, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{Countries: []string{"us", "fr"}})
	if err != nil {
		t.Fatalf("SyncHeadlines error: %v", err)
	}
	if report.Run.Status != models.SyncStatusPartial {
		t.Fatalf("expected partial, got %s", report.Run.Status)
	}
	if report.Run.Calls != 2 || report.Run.FailedCalls != 1 || len(report.Run.Errors) != 1 {
		t.Fatalf("unexpected run %+v", report.Run)
	}
	if report.Err == nil {
		t.Fatal("partial run must carry the call error")
	}
	if len(st.articles) != 1 {
		t.Fatalf("successful calls must still be stored, got %d", len(st.articles))
	}
}

func TestSyncHeadlinesAllCallsFail(t *testing.T) {
	up := &fakeUpstream{failures: map[string]error{"unfiltered": errors.New("down")}}
	st := newFakeStore()
	p := newTestPipeline(up, st, nil, 1)

	report, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{})
	if err != nil {
		t.Fatalf("SyncHeadlines error: %v", err)
	}
	if report.Run.Status != models.SyncStatusFailed {
		t.Fatalf("expected failed, got %s", report.Run.Status)
	}
	if len(st.runs) != 1 || st.runs[0].Status != models.SyncStatusFailed {
		t.Fatalf("failure must be journaled: %+v", st.runs)
	}
}

func TestSyncHeadlinesPersistenceFailure(t *testing.T) {
	up := &fakeUpstream{headlines: map[string][]newsapi.ArticleRecord{
		"unfiltered": {article("https://x/a", "a", "2025-05-01T10:00:00Z", "")},
	}}
	st := newFakeStore()
	st.upsertErr = errors.New("tx aborted")
	p := newTestPipeline(up, st, nil, 1)

	report, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{})
	if err != nil {
		t.Fatalf("persistence failures are not returned as errors: %v", err)
	}
	if report.Run.Status != models.SyncStatusFailed || report.Err == nil {
		t.Fatalf("expected failed report, got %+v", report)
	}
}

func TestSyncHeadlinesLinkLookupFailureStillStores(t *testing.T) {
	up := &fakeUpstream{headlines: map[string][]newsapi.ArticleRecord{
		"unfiltered": {article("https://x/a", "a", "2025-05-01T10:00:00Z", "BBC")},
	}}
	st := newFakeStore()
	st.linksErr = errors.New("timeout")
	p := newTestPipeline(up, st, nil, 1)

	if _, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{}); err != nil {
		t.Fatal(err)
	}
	if a, ok := st.articles["https://x/a"]; !ok || a.SourceID.Valid {
		t.Fatalf("expected unlinked article, got %+v ok=%v", a, ok)
	}
}

func TestSyncHeadlinesUnfilteredSingleCall(t *testing.T) {
	up := &fakeUpstream{}
	p := newTestPipeline(up, newFakeStore(), nil, 1)

	if _, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{Query: "bitcoin"}); err != nil {
		t.Fatal(err)
	}
	keys := up.callKeys()
	if len(keys) != 1 || keys[0] != "q=bitcoin" {
		t.Fatalf("expected single query call, got %v", keys)
	}
	if up.calls[0].PageSize != newsapi.MaxPageSize {
		t.Fatalf("unexpected page size %d", up.calls[0].PageSize)
	}
}

func TestSyncHeadlinesSamplesFilters(t *testing.T) {
	up := &fakeUpstream{}
	st := newFakeStore()
	st.categories = []string{"business"}
	p := newTestPipeline(up, st, nil, 1)

	if _, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{SampleCountries: 10}); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"country=ca category=business",
		"country=eg category=business",
		"country=fr category=business",
		"country=us category=business",
	}
	got := up.callKeys()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSyncHeadlinesRejectsInvalidRequest(t *testing.T) {
	up := &fakeUpstream{}
	st := newFakeStore()
	p := newTestPipeline(up, st, nil, 1)

	cases := []HeadlinesRequest{
		{Categories: []string{"weather"}},
		{SampleCountries: -1},
		{Countries: []string{""}},
	}
	for _, req := range cases {
		if _, err := p.SyncHeadlines(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
	if len(up.calls) != 0 || len(st.runs) != 0 {
		t.Fatal("rejected requests must not reach upstream or the journal")
	}
}

func TestSyncHeadlinesConcurrentFetchKeepsPlanOrder(t *testing.T) {
	secondDone := make(chan struct{})
	up := &fakeUpstream{
		headlines: map[string][]newsapi.ArticleRecord{
			"country=us": {article("https://x/a", "from us", "2025-05-01T10:00:00Z", "")},
			"country=fr": {article("https://x/a", "from fr", "2025-05-01T10:00:00Z", "")},
		},
		hooks: map[string]func(){
			"country=us": func() { <-secondDone },
			"country=fr": func() { close(secondDone) },
		},
	}
	st := newFakeStore()
	p := newTestPipeline(up, st, nil, 2)

	if _, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{Countries: []string{"us", "fr"}}); err != nil {
		t.Fatal(err)
	}
	if got := st.articles["https://x/a"].Title; got != "from us" {
		t.Fatalf("merge must follow plan order, got %q", got)
	}
}

func TestSyncHeadlinesSkipsWhenLocked(t *testing.T) {
	up := &fakeUpstream{}
	st := newFakeStore()
	p := newTestPipeline(up, st, &fakeLocker{err: lock.ErrNotAcquired}, 1)

	report, err := p.SyncHeadlines(context.Background(), HeadlinesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Run.Status != models.SyncStatusSkipped {
		t.Fatalf("expected skipped, got %s", report.Run.Status)
	}
	if len(up.calls) != 0 {
		t.Fatal("skipped run must not call upstream")
	}
}

func TestSyncHeadlinesRunsUnlockedWhenLockBackendDown(t *testing.T) {
	up := &fakeUpstream{}
	p := newTestPipeline(up, newFakeStore(), &fakeLocker{err: errors.New("dial tcp: refused")}, 1)

	report, _ := p.SyncHeadlines(context.Background(), HeadlinesRequest{})
	if report.Run.Status != models.SyncStatusOK || len(up.calls) != 1 {
		t.Fatalf("expected run to proceed, got %+v", report.Run)
	}
}

func TestSyncSourcesReplaces(t *testing.T) {
	up := &fakeUpstream{sources: []newsapi.SourceRecord{
		{ID: "bbc-news", Name: "BBC News", Category: "general", Language: "en", Country: "gb"},
		{ID: "", Name: "No Id"},
		{ID: "cnn", Name: "CNN", Category: "general", Language: "en", Country: "us"},
	}}
	st := newFakeStore()
	st.sources["old"] = storeSource("old", "Old", "", "", "")
	locker := &fakeLocker{}
	p := newTestPipeline(up, st, locker, 1)

	report := p.SyncSources(context.Background())
	if report.Run.Status != models.SyncStatusOK {
		t.Fatalf("expected ok, got %+v", report.Run)
	}
	if len(st.sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", st.sources)
	}
	if _, ok := st.sources["old"]; ok {
		t.Fatal("stale source should be gone")
	}
	if report.Run.Created != 2 || report.Run.Discarded != 1 {
		t.Fatalf("unexpected counts %+v", report.Run)
	}
	if locker.released != 1 {
		t.Fatalf("lock should be released once, got %d", locker.released)
	}
}

func TestSyncSourcesFailureKeepsExisting(t *testing.T) {
	st := newFakeStore()
	st.sources["bbc-news"] = storeSource("bbc-news", "BBC News", "general", "en", "")

	cases := map[string]*fakeUpstream{
		"upstream error": {sourcesErr: errors.New("503")},
		"empty upstream": {sources: nil},
	}
	for name, up := range cases {
		p := newTestPipeline(up, st, nil, 1)
		report := p.SyncSources(context.Background())
		if report.Run.Status == models.SyncStatusOK {
			t.Fatalf("%s: expected non-ok status", name)
		}
		if len(st.sources) != 1 {
			t.Fatalf("%s: existing sources must survive, got %v", name, st.sources)
		}
	}

	up := &fakeUpstream{sources: []newsapi.SourceRecord{{ID: "cnn", Name: "CNN"}}}
	st.replaceErr = errors.New("rollback")
	report := newTestPipeline(up, st, nil, 1).SyncSources(context.Background())
	if report.Run.Status != models.SyncStatusFailed || report.Err == nil {
		t.Fatalf("expected failed report, got %+v", report)
	}
	if _, ok := st.sources["bbc-news"]; !ok {
		t.Fatal("failed replacement must leave the original set intact")
	}
}
