// Package fanout expands multi-valued filters into the single-valued
// queries the upstream API accepts.
package fanout

import (
	"math/rand/v2"

	"github.com/nitesh/news_aggregator/internal/newsapi"
)

// BuildCombinations returns one Params per (country, category) pair, or per
// country, or per category, followed by one Params per source. Sources are
// never mixed with the other axes. No axes yields nil, telling the caller to
// fall back to an unfiltered query.
func BuildCombinations(countries, categories, sources []string) []newsapi.Params {
	var out []newsapi.Params
	switch {
	case len(countries) > 0 && len(categories) > 0:
		for _, country := range countries {
			for _, category := range categories {
				out = append(out, newsapi.Params{Country: country, Category: category, PageSize: newsapi.MaxPageSize})
			}
		}
	case len(countries) > 0:
		for _, country := range countries {
			out = append(out, newsapi.Params{Country: country, PageSize: newsapi.MaxPageSize})
		}
	case len(categories) > 0:
		for _, category := range categories {
			out = append(out, newsapi.Params{Category: category, PageSize: newsapi.MaxPageSize})
		}
	}
	for _, source := range sources {
		out = append(out, newsapi.Params{Source: source, PageSize: newsapi.MaxPageSize})
	}
	return out
}

// Sampler draws random filter subsets. A nil *rand.Rand uses the global source.
type Sampler struct {
	rnd *rand.Rand
}

func NewSampler(rnd *rand.Rand) *Sampler {
	return &Sampler{rnd: rnd}
}

// SampleFilters draws min(count, available) countries and categories without
// replacement. A count <= 0 selects the whole set.
func (s *Sampler) SampleFilters(allCountries, allCategories []string, countryCount, categoryCount int) (countries, categories []string) {
	return s.sample(allCountries, countryCount), s.sample(allCategories, categoryCount)
}

func (s *Sampler) sample(items []string, n int) []string {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	perm := s.perm(len(items))
	out := make([]string, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, items[idx])
	}
	return out
}

func (s *Sampler) perm(n int) []int {
	if s == nil || s.rnd == nil {
		return rand.Perm(n)
	}
	return s.rnd.Perm(n)
}
