package store

import (
	"database/sql"
	"strings"

	"github.com/nitesh/news_aggregator/pkg/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// codeOrName lowercases v and adds any codes whose display name equals it.
func codeOrName(v string, byName func(string) []string) []string {
	out := []string{strings.ToLower(v)}
	return append(out, byName(v)...)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func categoryOf(id sql.NullInt64, name sql.NullString) *models.Category {
	if !id.Valid {
		return nil
	}
	return &models.Category{ID: int(id.Int64), Name: name.String, DisplayName: models.CategoryDisplayName(name.String)}
}

func languageOf(id sql.NullInt64, code sql.NullString) *models.Language {
	if !id.Valid {
		return nil
	}
	return &models.Language{ID: int(id.Int64), Code: code.String, DisplayName: models.LanguageDisplayName(code.String)}
}

func countryOf(id sql.NullInt64, code sql.NullString) *models.Country {
	if !id.Valid {
		return nil
	}
	return &models.Country{ID: int(id.Int64), Code: code.String, DisplayName: models.CountryDisplayName(code.String)}
}
