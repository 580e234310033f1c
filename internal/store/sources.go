package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	dbtypes "github.com/nitesh/news_aggregator/internal/db"
	"github.com/nitesh/news_aggregator/pkg/models"
)

// SourceInput is a publisher to persist. Category, Language and Country are
// matched exactly against the reference tables; no match stores NULL.
type SourceInput struct {
	SourceID    string
	Name        string
	Description string
	URL         string
	Category    string
	Language    string
	Country     string
}

// SourceLink is what an article needs from its source at write time.
type SourceLink struct {
	ID         string        `db:"id"`
	Name       string        `db:"name"`
	CategoryID sql.NullInt64 `db:"category_id"`
	LanguageID sql.NullInt64 `db:"language_id"`
	CountryID  sql.NullInt64 `db:"country_id"`
}

const upsertSourceSQL = `
INSERT INTO sources (id, external_id, name, description, url, category_id, language_id, country_id)
VALUES ($1, $2, $3, $4, $5,
  (SELECT id FROM categories WHERE name = $6),
  (SELECT id FROM languages WHERE code = $7),
  (SELECT id FROM countries WHERE code = $8))
ON CONFLICT (external_id) DO UPDATE SET
  name = EXCLUDED.name,
  description = EXCLUDED.description,
  url = EXCLUDED.url,
  category_id = EXCLUDED.category_id,
  language_id = EXCLUDED.language_id,
  country_id = EXCLUDED.country_id
`

// ReplaceSources makes the sources table equal to sources in one
// transaction: rows missing from the new set are deleted, the rest are
// upserted by external id so article links to surviving sources are kept.
// Either the whole replacement commits or nothing changes.
func (p *PgStore) ReplaceSources(ctx context.Context, sources []SourceInput) (int, error) {
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.SourceID)
	}

	err := p.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE NOT (external_id = ANY($1))`, pq.Array(ids)); err != nil {
			return fmt.Errorf("delete stale sources: %w", err)
		}
		for _, s := range sources {
			_, err := tx.ExecContext(ctx, upsertSourceSQL,
				uuid.New().String(),
				s.SourceID,
				s.Name,
				dbtypes.NullString(s.Description),
				dbtypes.NullString(s.URL),
				s.Category,
				s.Language,
				s.Country,
			)
			if err != nil {
				return fmt.Errorf("upsert source %s: %w", s.SourceID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(sources), nil
}

// SourceLinksByName indexes sources by exact name. When two sources share a
// name the one with the smallest external id wins.
func (p *PgStore) SourceLinksByName(ctx context.Context) (map[string]SourceLink, error) {
	rows := []SourceLink{}
	query := `SELECT id, name, category_id, language_id, country_id FROM sources ORDER BY external_id`
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("load source links: %w", err)
	}
	out := make(map[string]SourceLink, len(rows))
	for _, r := range rows {
		if _, ok := out[r.Name]; !ok {
			out[r.Name] = r
		}
	}
	return out, nil
}

type sourceRow struct {
	ID           string         `db:"id"`
	ExternalID   string         `db:"external_id"`
	Name         string         `db:"name"`
	Description  sql.NullString `db:"description"`
	URL          sql.NullString `db:"url"`
	CategoryID   sql.NullInt64  `db:"category_id"`
	CategoryName sql.NullString `db:"category_name"`
	LanguageID   sql.NullInt64  `db:"language_id"`
	LanguageCode sql.NullString `db:"language_code"`
	CountryID    sql.NullInt64  `db:"country_id"`
	CountryCode  sql.NullString `db:"country_code"`
}

func (r sourceRow) model() models.Source {
	return models.Source{
		ID:          r.ID,
		SourceID:    r.ExternalID,
		Name:        r.Name,
		Description: r.Description.String,
		URL:         r.URL.String,
		Category:    categoryOf(r.CategoryID, r.CategoryName),
		Language:    languageOf(r.LanguageID, r.LanguageCode),
		Country:     countryOf(r.CountryID, r.CountryCode),
	}
}

func sourceListQuery(b sq.SelectBuilder) sq.SelectBuilder {
	return b.From("sources s").
		LeftJoin("categories c ON c.id = s.category_id").
		LeftJoin("languages l ON l.id = s.language_id").
		LeftJoin("countries co ON co.id = s.country_id")
}

func applySourceFilter(b sq.SelectBuilder, f models.SourceFilter) sq.SelectBuilder {
	if f.Category != "" {
		b = b.Where(sq.Expr("LOWER(c.name) = ?", strings.ToLower(f.Category)))
	}
	if f.Language != "" {
		b = b.Where(sq.Expr("LOWER(l.code) = ANY(?)", pq.Array(codeOrName(f.Language, models.LanguageCodesForName))))
	}
	if f.Country != "" {
		b = b.Where(sq.Expr("LOWER(co.code) = ANY(?)", pq.Array(codeOrName(f.Country, models.CountryCodesForName))))
	}
	return b
}

// ListSources returns one page of sources ordered by name.
func (p *PgStore) ListSources(ctx context.Context, f models.SourceFilter) (models.Page[models.Source], error) {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	countQ := applySourceFilter(sourceListQuery(p.sb.Select("COUNT(*)")), f)
	total, offset, err := p.paginate(ctx, countQ, f.Page, f.PageSize)
	if err != nil {
		return models.Page[models.Source]{}, err
	}

	q := applySourceFilter(sourceListQuery(p.sb.Select(
		"s.id", "s.external_id", "s.name", "s.description", "s.url",
		"c.id AS category_id", "c.name AS category_name",
		"l.id AS language_id", "l.code AS language_code",
		"co.id AS country_id", "co.code AS country_code",
	)), f).
		OrderBy("s.name", "s.external_id").
		Limit(uint64(f.PageSize)).
		Offset(offset)

	query, args, err := q.ToSql()
	if err != nil {
		return models.Page[models.Source]{}, fmt.Errorf("build source list: %w", err)
	}
	rows := []sourceRow{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return models.Page[models.Source]{}, fmt.Errorf("list sources: %w", err)
	}
	out := make([]models.Source, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return models.NewPage(out, total, f.Page, f.PageSize), nil
}
