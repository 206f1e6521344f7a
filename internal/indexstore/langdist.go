package indexstore

import (
	"context"

	"github.com/blevesearch/bleve/v2"

	"github.com/doclex/doclex/internal/docfields"
)

// LanguageDistribution is the language -> document count mapping the
// query executor uses to derive stemmed-field boosts. It is replaced
// wholesale after each commit; readers never see a partial view.
type LanguageDistribution struct {
	Counts map[string]int
	Total  int
}

// Weight returns a stemmed-field boost that grows with how common lang
// is across the corpus: 0.3 + 0.7*count(L)/total when lang has any
// documents, 0 otherwise.
func (d *LanguageDistribution) Weight(lang string) float64 {
	if d == nil || d.Total == 0 {
		return 0
	}
	count := d.Counts[lang]
	if count == 0 {
		return 0
	}
	return 0.3 + 0.7*float64(count)/float64(d.Total)
}

// refreshLanguageDistribution recomputes the distribution via a facet
// query on the language field and atomically swaps it into s.langDist.
func (s *Store) refreshLanguageDistribution(ctx context.Context) error {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 0
	facet := bleve.NewFacetRequest(docfields.FieldLanguage, maxLanguageFacetSize)
	req.AddFacet("languages", facet)

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return err
	}

	dist := &LanguageDistribution{Counts: map[string]int{}}
	if fr, ok := result.Facets["languages"]; ok {
		for _, term := range fr.Terms.Terms() {
			dist.Counts[term.Term] = term.Count
			dist.Total += term.Count
		}
	}

	s.langDist.Store(dist)
	return nil
}

const maxLanguageFacetSize = 64

// LanguageDistribution returns the current cached distribution. Never
// nil: an empty Store reports a zero-value distribution.
func (s *Store) LanguageDistribution() *LanguageDistribution {
	if d, ok := s.langDist.Load().(*LanguageDistribution); ok && d != nil {
		return d
	}
	return &LanguageDistribution{Counts: map[string]int{}}
}
