// Package queryparse implements doclex's custom query parser:
// a hand-rolled recursive-descent grammar over a conventional
// boolean/field syntax, extended with two rewrites the generic bleve
// query-string parser doesn't perform on its own:
//
//   - phrase expansion: a multi-term quoted phrase with no explicit slop
//     is rewritten to (exact phrase boosted) OR (slop-3 phrase), widening
//     recall without discarding exact-match ranking.
//   - adaptive prefix scoring: a trailing-wildcard term of length >= 4 is
//     rewritten into a disjunction over the most frequent matching terms
//     in the index, so common short completions don't drown rarer long
//     ones; shorter prefixes fall back to a flat, unscored prefix query.
//
// Leading-wildcard queries are rewritten against the content_reversed
// shadow field (see internal/textanalysis), turning a suffix search into
// a prefix search.
package queryparse
