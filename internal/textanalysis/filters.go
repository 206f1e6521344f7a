// Package textanalysis builds the per-field analyzer map: a shared
// normalizing prefix (tokenize, lowercase, Unicode-NFKC fold), a reversed
// variant for leading-wildcard queries, and a Snowball stemmed variant
// per supported language.
package textanalysis

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldFilterName is the custom token filter that folds case, diacritics,
// ligatures, and full/half-width variants (e.g. "Muller" and "Müller"
// both reduce to "muller").
const FoldFilterName = "doclex_nfkc_fold"

// ReverseFilterName reverses each token's characters, used to build
// content_reversed for efficient leading-wildcard (*suffix) queries.
const ReverseFilterName = "doclex_reverse"

func init() {
	_ = registry.RegisterTokenFilter(FoldFilterName, foldFilterConstructor)
	_ = registry.RegisterTokenFilter(ReverseFilterName, reverseFilterConstructor)
}

func foldFilterConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &nfkcFoldFilter{}, nil
}

// foldTransformer decomposes (NFKD, which also maps ligatures and
// full-width forms to their compatibility equivalents), strips the
// combining marks that carried diacritics, and recomposes. Lowercasing
// happens afterwards on the stripped text.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldTerm is the one normalization applied at both index and query
// time: "Müller", "MULLER", and "Ｍuller" all reduce to "muller".
func foldTerm(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// nfkcFoldFilter applies foldTerm to every token.
type nfkcFoldFilter struct{}

func (f *nfkcFoldFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		token.Term = []byte(foldTerm(string(token.Term)))
	}
	return input
}

func reverseFilterConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &reverseFilter{}, nil
}

// reverseFilter reverses each token's runes in place, used only for the
// content_reversed shadow field.
type reverseFilter struct{}

func (f *reverseFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		runes := []rune(string(token.Term))
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		token.Term = []byte(string(runes))
	}
	return input
}

// ReverseString reverses a plain Go string the same way reverseFilter
// reverses a token, used by the query parser to rewrite a leading-wildcard
// term into a suffix search against content_reversed.
func ReverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// Fold applies the same fold-and-lowercase normalization the index
// analyzer applies to tokens, for use on raw prefix/keyword terms the
// query parser must normalize itself before building the query tree.
func Fold(s string) string {
	return foldTerm(s)
}
