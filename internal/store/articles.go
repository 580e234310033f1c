package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	dbtypes "github.com/nitesh/news_aggregator/internal/db"
	"github.com/nitesh/news_aggregator/pkg/models"
)

var ErrInvalidOrdering = errors.New("invalid ordering")

// DefaultArticleOrdering is newest first.
const DefaultArticleOrdering = "-published_at"

var articleOrderColumns = map[string]string{
	"published_at": "a.published_at",
	"created_at":   "a.created_at",
	"title":        "a.title",
}

// ArticleInput is a normalized upstream article ready to persist. The
// reference ids are the denormalized copies taken from the source.
type ArticleInput struct {
	Title       string
	Description string
	URL         string
	Content     string
	ImageURL    string
	PublishedAt time.Time
	SourceID    sql.NullString
	CategoryID  sql.NullInt64
	LanguageID  sql.NullInt64
	CountryID   sql.NullInt64
}

// Existing rows keep their content; only NULL links are filled in.
const upsertArticleSQL = `
INSERT INTO articles (id, title, description, url, content, image_url, published_at, source_id, category_id, language_id, country_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (url) DO UPDATE SET
  source_id = COALESCE(articles.source_id, EXCLUDED.source_id),
  category_id = COALESCE(articles.category_id, EXCLUDED.category_id),
  language_id = COALESCE(articles.language_id, EXCLUDED.language_id),
  country_id = COALESCE(articles.country_id, EXCLUDED.country_id)
RETURNING (xmax = 0) AS inserted
`

// UpsertArticles get-or-creates every article by URL inside one transaction
// and reports how many rows were new.
func (p *PgStore) UpsertArticles(ctx context.Context, articles []ArticleInput) (created, existing int, err error) {
	if len(articles) == 0 {
		return 0, 0, nil
	}
	err = p.inTx(ctx, func(tx *sqlx.Tx) error {
		created, existing = 0, 0
		for _, a := range articles {
			var inserted bool
			row := tx.QueryRowxContext(ctx, upsertArticleSQL,
				uuid.New().String(),
				a.Title,
				dbtypes.NullString(a.Description),
				a.URL,
				dbtypes.NullString(a.Content),
				dbtypes.NullString(a.ImageURL),
				a.PublishedAt.UTC(),
				a.SourceID,
				a.CategoryID,
				a.LanguageID,
				a.CountryID,
			)
			if err := row.Scan(&inserted); err != nil {
				return fmt.Errorf("upsert article url=%s: %w", a.URL, err)
			}
			if inserted {
				created++
			} else {
				existing++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, existing, nil
}

type articleRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  sql.NullString `db:"description"`
	URL          string         `db:"url"`
	ImageURL     sql.NullString `db:"image_url"`
	PublishedAt  time.Time      `db:"published_at"`
	CreatedAt    time.Time      `db:"created_at"`
	SourcePK     sql.NullString `db:"source_pk"`
	SourceExtID  sql.NullString `db:"source_external_id"`
	SourceName   sql.NullString `db:"source_name"`
	CategoryID   sql.NullInt64  `db:"category_id"`
	CategoryName sql.NullString `db:"category_name"`
	LanguageID   sql.NullInt64  `db:"language_id"`
	LanguageCode sql.NullString `db:"language_code"`
	CountryID    sql.NullInt64  `db:"country_id"`
	CountryCode  sql.NullString `db:"country_code"`
}

func (r articleRow) model() models.Article {
	a := models.Article{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.String,
		URL:         r.URL,
		ImageURL:    r.ImageURL.String,
		PublishedAt: r.PublishedAt,
		CreatedAt:   r.CreatedAt,
		Category:    categoryOf(r.CategoryID, r.CategoryName),
		Language:    languageOf(r.LanguageID, r.LanguageCode),
		Country:     countryOf(r.CountryID, r.CountryCode),
	}
	if r.SourcePK.Valid {
		a.Source = &models.Source{ID: r.SourcePK.String, SourceID: r.SourceExtID.String, Name: r.SourceName.String}
	}
	return a
}

var articleListColumns = []string{
	"a.id", "a.title", "a.description", "a.url", "a.image_url", "a.published_at", "a.created_at",
	"s.id AS source_pk", "s.external_id AS source_external_id", "s.name AS source_name",
	"c.id AS category_id", "c.name AS category_name",
	"l.id AS language_id", "l.code AS language_code",
	"co.id AS country_id", "co.code AS country_code",
}

func articleFrom(b sq.SelectBuilder) sq.SelectBuilder {
	return b.From("articles a").
		LeftJoin("sources s ON s.id = a.source_id").
		LeftJoin("categories c ON c.id = a.category_id").
		LeftJoin("languages l ON l.id = a.language_id").
		LeftJoin("countries co ON co.id = a.country_id")
}

func applyArticleFilter(b sq.SelectBuilder, f models.ArticleFilter) sq.SelectBuilder {
	if f.Category != "" {
		b = b.Where(sq.Expr("LOWER(c.name) = ?", strings.ToLower(f.Category)))
	}
	if f.Country != "" {
		b = b.Where(sq.Expr("LOWER(co.code) = ANY(?)", pq.Array(codeOrName(f.Country, models.CountryCodesForName))))
	}
	if f.Language != "" {
		b = b.Where(sq.Expr("LOWER(l.code) = ANY(?)", pq.Array(codeOrName(f.Language, models.LanguageCodesForName))))
	}
	if f.Source != "" {
		v := strings.ToLower(f.Source)
		b = b.Where(sq.Or{
			sq.Expr("LOWER(s.external_id) = ?", v),
			sq.Expr("LOWER(s.name) = ?", v),
		})
	}
	if f.Title != "" {
		b = b.Where(sq.Expr("a.title ILIKE ?", "%"+escapeLike(f.Title)+"%"))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		b = b.Where(sq.Or{
			sq.Expr("a.title ILIKE ?", pattern),
			sq.Expr("a.description ILIKE ?", pattern),
		})
	}
	if f.PublishedFrom != nil {
		b = b.Where(sq.GtOrEq{"a.published_at": f.PublishedFrom.UTC()})
	}
	if f.PublishedTo != nil {
		b = b.Where(sq.LtOrEq{"a.published_at": f.PublishedTo.UTC()})
	}
	return b
}

// ValidArticleOrdering reports whether ordering names a sortable field,
// optionally prefixed with "-" for descending.
func ValidArticleOrdering(ordering string) bool {
	_, err := articleOrderBy(ordering)
	return err == nil
}

func articleOrderBy(ordering string) ([]string, error) {
	if ordering == "" {
		ordering = DefaultArticleOrdering
	}
	dir := "ASC"
	field := ordering
	if strings.HasPrefix(field, "-") {
		dir = "DESC"
		field = field[1:]
	}
	col, ok := articleOrderColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrdering, ordering)
	}
	return []string{col + " " + dir, "a.id " + dir}, nil
}

// articleListQueries builds the count and select statements for f; the
// select has no offset yet.
func (p *PgStore) articleListQueries(f models.ArticleFilter) (countQ, listQ sq.SelectBuilder, err error) {
	order, err := articleOrderBy(f.Ordering)
	if err != nil {
		return countQ, listQ, err
	}
	countQ = applyArticleFilter(articleFrom(p.sb.Select("COUNT(*)")), f)
	listQ = applyArticleFilter(articleFrom(p.sb.Select(articleListColumns...)), f).
		OrderBy(order...).
		Limit(uint64(f.PageSize))
	return countQ, listQ, nil
}

func (p *PgStore) ListArticles(ctx context.Context, f models.ArticleFilter) (models.Page[models.Article], error) {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	countQ, listQ, err := p.articleListQueries(f)
	if err != nil {
		return models.Page[models.Article]{}, err
	}
	total, offset, err := p.paginate(ctx, countQ, f.Page, f.PageSize)
	if err != nil {
		return models.Page[models.Article]{}, err
	}

	query, args, err := listQ.Offset(offset).ToSql()
	if err != nil {
		return models.Page[models.Article]{}, fmt.Errorf("build article list: %w", err)
	}
	rows := []articleRow{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return models.Page[models.Article]{}, fmt.Errorf("list articles: %w", err)
	}
	out := make([]models.Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return models.NewPage(out, total, f.Page, f.PageSize), nil
}

type articleDetailRow struct {
	articleRow
	Content            sql.NullString `db:"content"`
	SourceDescription  sql.NullString `db:"source_description"`
	SourceURL          sql.NullString `db:"source_url"`
	SourceCategoryID   sql.NullInt64  `db:"source_category_id"`
	SourceCategoryName sql.NullString `db:"source_category_name"`
	SourceLanguageID   sql.NullInt64  `db:"source_language_id"`
	SourceLanguageCode sql.NullString `db:"source_language_code"`
	SourceCountryID    sql.NullInt64  `db:"source_country_id"`
	SourceCountryCode  sql.NullString `db:"source_country_code"`
}

const articleDetailSQL = `
SELECT a.id, a.title, a.description, a.url, a.content, a.image_url, a.published_at, a.created_at,
  s.id AS source_pk, s.external_id AS source_external_id, s.name AS source_name,
  s.description AS source_description, s.url AS source_url,
  sc.id AS source_category_id, sc.name AS source_category_name,
  sl.id AS source_language_id, sl.code AS source_language_code,
  sco.id AS source_country_id, sco.code AS source_country_code,
  c.id AS category_id, c.name AS category_name,
  l.id AS language_id, l.code AS language_code,
  co.id AS country_id, co.code AS country_code
FROM articles a
LEFT JOIN sources s ON s.id = a.source_id
LEFT JOIN categories sc ON sc.id = s.category_id
LEFT JOIN languages sl ON sl.id = s.language_id
LEFT JOIN countries sco ON sco.id = s.country_id
LEFT JOIN categories c ON c.id = a.category_id
LEFT JOIN languages l ON l.id = a.language_id
LEFT JOIN countries co ON co.id = a.country_id
WHERE a.id = $1
`

// GetArticle returns the article with its full source. Malformed ids are
// reported as ErrNotFound.
func (p *PgStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var row articleDetailRow
	err := p.db.GetContext(ctx, &row, articleDetailSQL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article id=%s: %w", id, err)
	}

	a := row.model()
	a.Content = row.Content.String
	if a.Source != nil {
		a.Source.Description = row.SourceDescription.String
		a.Source.URL = row.SourceURL.String
		a.Source.Category = categoryOf(row.SourceCategoryID, row.SourceCategoryName)
		a.Source.Language = languageOf(row.SourceLanguageID, row.SourceLanguageCode)
		a.Source.Country = countryOf(row.SourceCountryID, row.SourceCountryCode)
	}
	return &a, nil
}
