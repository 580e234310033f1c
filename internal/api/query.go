package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nitesh/news_aggregator/internal/store"
	"github.com/nitesh/news_aggregator/pkg/models"
)

// maxLookbackDays caps the days filter; larger values match the same rows.
const maxLookbackDays = 100 * 365

// articleQuery binds the article listing parameters. Integer fields are
// pointers so an explicit zero is still validated. page_size is parsed
// leniently: anything unusable falls back to the store default.
type articleQuery struct {
	Category      string `form:"category"`
	Country       string `form:"country"`
	Language      string `form:"language"`
	Source        string `form:"source"`
	Title         string `form:"title"`
	Search        string `form:"search"`
	PublishedFrom string `form:"published_from"`
	PublishedTo   string `form:"published_to"`
	Days          *int   `form:"days" binding:"omitempty,min=0"`
	Ordering      string `form:"ordering"`
	Page          *int   `form:"page" binding:"omitempty,min=1"`
	PageSize      string `form:"page_size"`
}

func (q articleQuery) filter(now time.Time) (models.ArticleFilter, error) {
	f := models.ArticleFilter{
		Category: strings.TrimSpace(q.Category),
		Country:  strings.TrimSpace(q.Country),
		Language: strings.TrimSpace(q.Language),
		Source:   strings.TrimSpace(q.Source),
		Title:    strings.TrimSpace(q.Title),
		Search:   strings.TrimSpace(q.Search),
		Ordering: strings.TrimSpace(q.Ordering),
		Page:     deref(q.Page),
		PageSize: pageSize(q.PageSize),
	}
	if f.Ordering != "" && !store.ValidArticleOrdering(f.Ordering) {
		return f, fmt.Errorf("invalid ordering %q", f.Ordering)
	}

	if q.PublishedFrom != "" {
		t, err := parseDate(q.PublishedFrom, false)
		if err != nil {
			return f, fmt.Errorf("invalid published_from: %w", err)
		}
		f.PublishedFrom = &t
	}
	if q.PublishedTo != "" {
		t, err := parseDate(q.PublishedTo, true)
		if err != nil {
			return f, fmt.Errorf("invalid published_to: %w", err)
		}
		f.PublishedTo = &t
	}
	if days := deref(q.Days); days > 0 {
		since := now.AddDate(0, 0, -min(days, maxLookbackDays)).UTC()
		if f.PublishedFrom == nil || f.PublishedFrom.Before(since) {
			f.PublishedFrom = &since
		}
	}
	if f.PublishedFrom != nil && f.PublishedTo != nil && f.PublishedFrom.After(*f.PublishedTo) {
		return f, errors.New("published_from is after published_to")
	}
	return f, nil
}

type sourceQuery struct {
	Category string `form:"category"`
	Language string `form:"language"`
	Country  string `form:"country"`
	Page     *int   `form:"page" binding:"omitempty,min=1"`
	PageSize string `form:"page_size"`
}

func (q sourceQuery) filter() models.SourceFilter {
	return models.SourceFilter{
		Category: strings.TrimSpace(q.Category),
		Language: strings.TrimSpace(q.Language),
		Country:  strings.TrimSpace(q.Country),
		Page:     deref(q.Page),
		PageSize: pageSize(q.PageSize),
	}
}

type syncRunQuery struct {
	Kind     string `form:"kind" binding:"omitempty,oneof=sources headlines"`
	Page     *int   `form:"page" binding:"omitempty,min=1"`
	PageSize string `form:"page_size"`
}

func (q syncRunQuery) filter() models.SyncRunFilter {
	return models.SyncRunFilter{Kind: q.Kind, Page: deref(q.Page), PageSize: pageSize(q.PageSize)}
}

// parseDate accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}

// pageSize returns 0, meaning the default size, for blank, non-numeric or
// non-positive values. Oversized values are clamped by the store.
func pageSize(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
