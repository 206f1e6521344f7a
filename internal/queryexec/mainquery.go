package queryexec

import (
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/queryparse"
)

// buildMainQuery parses queryStr once against the content field and
// once per supported stemmed language, then combines them into a single
// "should, minimumShouldMatch=1" disjunction so a document matches if
// either its raw content or any stemmed shadow field matches. Stemmed
// clauses are boosted by how common that language is in the corpus, so
// a rare language's morphological recall doesn't drown out exact
// matches in the dominant language.
func (e *Executor) buildMainQuery(queryStr string, language string) (query.Query, error) {
	p := e.parser
	contentOpts := queryparse.Options{
		Field:         docfields.FieldContent,
		ReversedField: docfields.FieldContentReversed,
		Terms:         e.store,
	}
	contentQuery, err := p.Parse(queryStr, contentOpts)
	if err != nil {
		return nil, err
	}
	if bq, ok := contentQuery.(query.BoostableQuery); ok {
		bq.SetBoost(contentBoost)
	}

	disjuncts := []query.Query{contentQuery}

	langs := stemmedLanguages(language)
	dist := e.store.LanguageDistribution()
	for _, lang := range langs {
		field := docfields.StemmedFieldName(lang)
		stemmedQuery, err := p.Parse(queryStr, queryparse.Options{
			Field: field,
			Terms: e.store,
		})
		if err != nil {
			return nil, err
		}
		weight := dist.Weight(lang)
		if language != "" {
			// An explicit language request always applies at full weight,
			// even for a language with no indexed documents yet.
			weight = 1.0
		}
		if weight <= 0 {
			continue
		}
		stemmedQuery.SetBoost(weight)
		disjuncts = append(disjuncts, stemmedQuery)
	}

	if len(disjuncts) == 1 {
		return disjuncts[0], nil
	}
	dq := query.NewDisjunctionQuery(disjuncts)
	dq.SetMin(1)
	return dq, nil
}

// stemmedLanguages returns the languages to query against their
// content_stemmed_<lang> shadow field: just the requested language if
// one was given, otherwise every supported language (the corpus weight
// then silences ones with no documents).
func stemmedLanguages(requested string) []string {
	if requested != "" {
		return []string{requested}
	}
	langs := make([]string, len(supportedStemmedLanguages))
	copy(langs, supportedStemmedLanguages)
	return langs
}

var supportedStemmedLanguages = []string{"de", "en"}

// contentBoost weights the exact content clause above the stemmed
// shadow clauses so unstemmed matches rank first.
const contentBoost = 2.0
