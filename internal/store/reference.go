package store

import (
	"context"
	"fmt"

	"github.com/nitesh/news_aggregator/pkg/models"
)

func (p *PgStore) Categories(ctx context.Context) ([]models.Category, error) {
	rows := []models.Category{}
	if err := p.db.SelectContext(ctx, &rows, `SELECT id, name FROM categories ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	for i := range rows {
		rows[i].DisplayName = models.CategoryDisplayName(rows[i].Name)
	}
	return rows, nil
}

func (p *PgStore) Languages(ctx context.Context) ([]models.Language, error) {
	rows := []models.Language{}
	if err := p.db.SelectContext(ctx, &rows, `SELECT id, code FROM languages ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	for i := range rows {
		rows[i].DisplayName = models.LanguageDisplayName(rows[i].Code)
	}
	return rows, nil
}

func (p *PgStore) Countries(ctx context.Context) ([]models.Country, error) {
	rows := []models.Country{}
	if err := p.db.SelectContext(ctx, &rows, `SELECT id, code FROM countries ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	for i := range rows {
		rows[i].DisplayName = models.CountryDisplayName(rows[i].Code)
	}
	return rows, nil
}

// FilterUniverse returns every stored country code and category name; the
// sampler draws from these.
func (p *PgStore) FilterUniverse(ctx context.Context) (countries, categories []string, err error) {
	if err := p.db.SelectContext(ctx, &countries, `SELECT code FROM countries ORDER BY id`); err != nil {
		return nil, nil, fmt.Errorf("list country codes: %w", err)
	}
	if err := p.db.SelectContext(ctx, &categories, `SELECT name FROM categories ORDER BY id`); err != nil {
		return nil, nil, fmt.Errorf("list category names: %w", err)
	}
	return countries, categories, nil
}
