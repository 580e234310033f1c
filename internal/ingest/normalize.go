package ingest

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nitesh/news_aggregator/internal/newsapi"
	"github.com/nitesh/news_aggregator/internal/store"
)

var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// parsePublishedAt reads an ISO-8601 timestamp. A trailing "Z" is treated as
// +00:00 and values without an offset are taken as UTC.
func parsePublishedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if strings.HasSuffix(raw, "Z") {
		raw = strings.TrimSuffix(raw, "Z") + "+00:00"
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// mergeByURL keeps the first record seen for each URL, in input order.
// Records without a URL are dropped and counted.
func mergeByURL(batches [][]newsapi.ArticleRecord) (merged []newsapi.ArticleRecord, dropped int) {
	seen := make(map[string]bool)
	for _, batch := range batches {
		for _, rec := range batch {
			url := strings.TrimSpace(rec.URL)
			if url == "" {
				dropped++
				continue
			}
			if seen[url] {
				continue
			}
			seen[url] = true
			rec.URL = url
			merged = append(merged, rec)
		}
	}
	return merged, dropped
}

// toArticleInput validates rec and copies the classification of its source
// onto the article. Records missing a title or timestamp are rejected.
func toArticleInput(rec newsapi.ArticleRecord, links map[string]store.SourceLink) (store.ArticleInput, bool) {
	title := strings.TrimSpace(rec.Title)
	if rec.URL == "" || title == "" {
		return store.ArticleInput{}, false
	}
	published, err := parsePublishedAt(rec.PublishedAt)
	if err != nil {
		return store.ArticleInput{}, false
	}

	in := store.ArticleInput{
		Title:       title,
		Description: rec.Description,
		URL:         rec.URL,
		Content:     rec.Content,
		ImageURL:    rec.URLToImage,
		PublishedAt: published,
	}
	if link, ok := links[rec.Source.Name]; ok && rec.Source.Name != "" {
		in.SourceID = sql.NullString{String: link.ID, Valid: true}
		in.CategoryID = link.CategoryID
		in.LanguageID = link.LanguageID
		in.CountryID = link.CountryID
	}
	return in, true
}

// toSourceInputs drops records without an id and keeps the first of any
// duplicate ids.
func toSourceInputs(records []newsapi.SourceRecord) (inputs []store.SourceInput, skipped int) {
	seen := make(map[string]bool)
	for _, r := range records {
		id := strings.TrimSpace(r.ID)
		if id == "" || seen[id] {
			skipped++
			continue
		}
		seen[id] = true
		inputs = append(inputs, store.SourceInput{
			SourceID:    id,
			Name:        r.Name,
			Description: r.Description,
			URL:         r.URL,
			Category:    r.Category,
			Language:    r.Language,
			Country:     r.Country,
		})
	}
	return inputs, skipped
}
