package textanalysis

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	// Each lang package registers its Snowball stemmer and stop-word
	// filters on import; the custom stemmed analyzers below reference
	// them by their exported names.
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
)

// DefaultAnalyzerName is the analyzer bound to content, title, and the
// other unstemmed text fields: StandardTokenize -> Lowercase -> NFKC fold.
const DefaultAnalyzerName = "doclex_default"

// ReversedAnalyzerName is bound to content_reversed: the default prefix
// plus a final char-reversal of each token.
const ReversedAnalyzerName = "doclex_reversed"

// StemmedAnalyzerName returns the analyzer name for a language's shadow
// field, e.g. "doclex_stemmed_de" for content_stemmed_de.
func StemmedAnalyzerName(lang string) string {
	return "doclex_stemmed_" + lang
}

// SupportedLanguages mirrors extract.SupportedLanguages without importing
// that package (textanalysis is lower in the dependency graph); keep the
// two lists in sync.
var SupportedLanguages = []string{"de", "en"}

// Configure registers doclex's three analyzer kinds on indexMapping and
// sets DefaultAnalyzerName as the mapping default. Must be called exactly
// once per index mapping before any field mapping references these names.
func Configure(indexMapping *mapping.IndexMappingImpl) error {
	if err := indexMapping.AddCustomAnalyzer(DefaultAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			FoldFilterName,
		},
	}); err != nil {
		return fmt.Errorf("register default analyzer: %w", err)
	}

	if err := indexMapping.AddCustomAnalyzer(ReversedAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			FoldFilterName,
			ReverseFilterName,
		},
	}); err != nil {
		return fmt.Errorf("register reversed analyzer: %w", err)
	}

	stemmerFilter := map[string]string{
		"de": de.SnowballStemmerName,
		"en": en.SnowballStemmerName,
	}
	stopFilter := map[string]string{
		"de": de.StopName,
		"en": en.StopName,
	}

	for _, lang := range SupportedLanguages {
		name := StemmedAnalyzerName(lang)
		if err := indexMapping.AddCustomAnalyzer(name, map[string]interface{}{
			"type":      custom.Name,
			"tokenizer": unicode.Name,
			"token_filters": []string{
				FoldFilterName,
				stopFilter[lang],
				stemmerFilter[lang],
			},
		}); err != nil {
			return fmt.Errorf("register stemmed analyzer %s: %w", lang, err)
		}
	}

	indexMapping.DefaultAnalyzer = DefaultAnalyzerName
	return nil
}
