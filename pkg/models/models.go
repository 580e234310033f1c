package models

import (
	"time"

	dbtypes "github.com/nitesh/news_aggregator/internal/db"
)

// Category is a topic label from the fixed upstream category set.
type Category struct {
	ID          int    `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	DisplayName string `db:"-" json:"display_name"`
}

type Language struct {
	ID          int    `db:"id" json:"id"`
	Code        string `db:"code" json:"code"`
	DisplayName string `db:"-" json:"display_name"`
}

type Country struct {
	ID          int    `db:"id" json:"id"`
	Code        string `db:"code" json:"code"`
	DisplayName string `db:"-" json:"display_name"`
}

// Source is a publisher known to the upstream API. SourceID is the upstream
// identifier (e.g. "bbc-news") and the key used when reconciling syncs.
type Source struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Category    *Category `json:"category"`
	Language    *Language `json:"language"`
	Country     *Country  `json:"country"`
}

// Article represents a stored news item. Category, Language and Country are
// copied from the linked source when the row is created and are not kept in
// sync afterwards.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Content     string    `json:"content,omitempty"`
	ImageURL    string    `json:"image_url"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	Source      *Source   `json:"source"`
	Category    *Category `json:"category"`
	Language    *Language `json:"language"`
	Country     *Country  `json:"country"`
}

// ArticleFilter carries the read API's article query.
type ArticleFilter struct {
	Category      string
	Country       string
	Language      string
	Source        string
	Title         string
	Search        string
	PublishedFrom *time.Time
	PublishedTo   *time.Time
	Ordering      string
	Page          int
	PageSize      int
}

type SourceFilter struct {
	Category string
	Language string
	Country  string
	Page     int
	PageSize int
}

type SyncRunFilter struct {
	Kind     string
	Page     int
	PageSize int
}

// Page is the envelope returned by every paginated listing.
type Page[T any] struct {
	Count       int `json:"count"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
	Results     []T `json:"results"`
}

// NewPage computes the page count for total rows split into pages of size.
// An empty result still has one (empty) page.
func NewPage[T any](results []T, total, page, size int) Page[T] {
	if results == nil {
		results = []T{}
	}
	pages := 1
	if size > 0 && total > size {
		pages = (total + size - 1) / size
	}
	return Page[T]{
		Count:       total,
		TotalPages:  pages,
		CurrentPage: page,
		PageSize:    size,
		Results:     results,
	}
}

const (
	SyncKindSources   = "sources"
	SyncKindHeadlines = "headlines"

	SyncStatusOK      = "ok"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
	SyncStatusSkipped = "skipped"
)

// SyncRun is the journal entry written after every sync attempt.
type SyncRun struct {
	ID          string              `db:"id" json:"id"`
	Kind        string              `db:"kind" json:"kind"`
	Status      string              `db:"status" json:"status"`
	StartedAt   time.Time           `db:"started_at" json:"started_at"`
	FinishedAt  time.Time           `db:"finished_at" json:"finished_at"`
	Created     int                 `db:"created" json:"created"`
	Existing    int                 `db:"existing" json:"existing"`
	Discarded   int                 `db:"discarded" json:"discarded"`
	Calls       int                 `db:"calls" json:"calls"`
	FailedCalls int                 `db:"failed_calls" json:"failed_calls"`
	Errors      dbtypes.StringSlice `db:"errors" json:"errors"`
}
