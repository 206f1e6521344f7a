package queryparse

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/textanalysis"
)

// Default phrase-expansion parameters.
const (
	DefaultPhraseBoost = 2.0
	DefaultPhraseSlop  = 3
)

// adaptivePrefixMinLen is the shortest prefix length eligible for scored
// (rather than constant-score) rewrite.
const adaptivePrefixMinLen = 4

// adaptivePrefixMaxTerms bounds how many matching terms are scored
// individually for a prefix query.
const adaptivePrefixMaxTerms = 50

// TermFreq is one entry in a field's term dictionary, used to drive
// adaptive prefix scoring.
type TermFreq struct {
	Term string
	Freq int
}

// TermLister enumerates a field's term dictionary from a starting
// prefix, in the order the dictionary stores it (lexicographic). The
// parser stops once terms no longer share the prefix. Implemented by
// internal/indexstore over the live bleve index.
type TermLister interface {
	TermsWithPrefix(field, prefix string, limit int) ([]TermFreq, error)
}

// Options configures one Parse call.
type Options struct {
	// Field is the field the query targets (content, content_stemmed_de, …).
	Field string

	// Keyword, when true, means Field holds un-analyzed keyword terms:
	// wildcard/prefix terms are used as-is rather than folded through
	// textanalysis.Fold.
	Keyword bool

	// ReversedField, when non-empty, is the shadow field a leading-wildcard
	// query is rewritten against (content_reversed). Required to parse
	// "*suffix" queries; if empty, such queries fall back to a literal
	// (and likely unproductive) WildcardQuery against Field.
	ReversedField string

	// PhraseBoost / PhraseSlop override the defaults above.
	PhraseBoost float64
	PhraseSlop  int

	// Terms enables adaptive prefix scoring. Nil disables it: all prefix
	// queries fall back to constant-score rewrite.
	Terms TermLister
}

func (o Options) withDefaults() Options {
	if o.PhraseBoost == 0 {
		o.PhraseBoost = DefaultPhraseBoost
	}
	if o.PhraseSlop == 0 {
		o.PhraseSlop = DefaultPhraseSlop
	}
	return o
}

// Parser parses user query strings into bleve query trees per Options.
type Parser struct{}

// New returns a Parser. It carries no state; Options are supplied per call.
func New() *Parser { return &Parser{} }

// Parse parses queryStr against opts.Field. An empty string or "*"
// produces a MatchAllQuery.
func (p *Parser) Parse(queryStr string, opts Options) (query.Query, error) {
	trimmed := strings.TrimSpace(queryStr)
	if trimmed == "" || trimmed == "*" {
		return query.NewMatchAllQuery(), nil
	}

	opts = opts.withDefaults()
	ps := &parseState{lex: newLexer(trimmed), opts: opts}
	ps.advance()

	q, err := ps.parseOr()
	if err != nil {
		return nil, doclexerr.InvalidQuerySyntax(fmt.Sprintf("failed to parse query %q: %v", queryStr, err), err)
	}
	if ps.tok.kind != tokEOF {
		return nil, doclexerr.InvalidQuerySyntax(fmt.Sprintf("unexpected trailing input in query %q", queryStr), nil)
	}
	return q, nil
}

type parseState struct {
	lex  *lexer
	tok  token
	opts Options
}

func (ps *parseState) advance() { ps.tok = ps.lex.next() }

// parseOr := parseAnd (OR parseAnd)*
func (ps *parseState) parseOr() (query.Query, error) {
	left, err := ps.parseAnd()
	if err != nil {
		return nil, err
	}
	var disjuncts []query.Query
	for ps.tok.kind == tokOr {
		ps.advance()
		right, err := ps.parseAnd()
		if err != nil {
			return nil, err
		}
		if disjuncts == nil {
			disjuncts = append(disjuncts, left)
		}
		disjuncts = append(disjuncts, right)
	}
	if disjuncts == nil {
		return left, nil
	}
	bq := query.NewDisjunctionQuery(disjuncts)
	bq.SetMin(1)
	return bq, nil
}

// parseAnd := parseNot (AND? parseNot)* -- AND is implicit between adjacent
// clauses, matching conventional boolean/field parser behavior.
func (ps *parseState) parseAnd() (query.Query, error) {
	left, err := ps.parseNot()
	if err != nil {
		return nil, err
	}
	var conjuncts []query.Query
	for {
		if ps.tok.kind == tokAnd {
			ps.advance()
		} else if !ps.startsOperand() {
			break
		}
		right, err := ps.parseNot()
		if err != nil {
			return nil, err
		}
		if conjuncts == nil {
			conjuncts = append(conjuncts, left)
		}
		conjuncts = append(conjuncts, right)
	}
	if conjuncts == nil {
		return left, nil
	}
	return query.NewConjunctionQuery(conjuncts), nil
}

func (ps *parseState) startsOperand() bool {
	switch ps.tok.kind {
	case tokTerm, tokPhrase, tokLParen, tokNot:
		return true
	default:
		return false
	}
}

// parseNot := NOT parseNot | parsePrimary
func (ps *parseState) parseNot() (query.Query, error) {
	if ps.tok.kind == tokNot {
		ps.advance()
		inner, err := ps.parseNot()
		if err != nil {
			return nil, err
		}
		bq := query.NewBooleanQuery(nil, nil, []query.Query{inner})
		bq.AddMust(query.NewMatchAllQuery())
		return bq, nil
	}
	return ps.parsePrimary()
}

// parsePrimary := '(' parseOr ')' | fieldTerm
func (ps *parseState) parsePrimary() (query.Query, error) {
	if ps.tok.kind == tokLParen {
		ps.advance()
		q, err := ps.parseOr()
		if err != nil {
			return nil, err
		}
		if ps.tok.kind != tokRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		ps.advance()
		return q, nil
	}
	return ps.parseFieldTerm()
}

// parseFieldTerm handles an optional "field:" prefix before a term or
// phrase. Only opts.Field is ever queried (doclex's search request has a
// single target field per Parse call; field-qualified clauses targeting a
// different field are treated as plain terms against opts.Field, since
// cross-field routing is the query executor's job, not the parser's).
func (ps *parseState) parseFieldTerm() (query.Query, error) {
	if ps.tok.kind == tokTerm {
		save := ps.tok
		// Lookahead for "ident:" by re-lexing is awkward with this simple
		// lexer; instead detect it via an embedded colon the lexer would
		// have split into two tokens (tokTerm, tokColon). So: consume the
		// term, and if a colon immediately follows, treat the consumed text
		// as a field name and re-read the value.
		ps.advance()
		if ps.tok.kind == tokColon {
			ps.advance()
			return ps.parseValue()
		}
		return ps.termQuery(save.text)
	}
	if ps.tok.kind == tokPhrase {
		ph := ps.tok
		ps.advance()
		return ps.phraseQuery(ph)
	}
	return nil, fmt.Errorf("expected term or phrase, got token kind %d", ps.tok.kind)
}

func (ps *parseState) parseValue() (query.Query, error) {
	switch ps.tok.kind {
	case tokTerm:
		t := ps.tok
		ps.advance()
		return ps.termQuery(t.text)
	case tokPhrase:
		ph := ps.tok
		ps.advance()
		return ps.phraseQuery(ph)
	default:
		return nil, fmt.Errorf("expected a value after ':'")
	}
}

// phraseQuery implements phrase expansion: a multi-term exact
// phrase with no explicit slop becomes (phrase^B) OR (phrase~S); a
// single-term "phrase" or an explicit slop is left unchanged.
func (ps *parseState) phraseQuery(t token) (query.Query, error) {
	terms := strings.Fields(t.text)
	if len(terms) <= 1 || t.slop >= 0 {
		mq := query.NewMatchPhraseQuery(t.text)
		mq.SetField(ps.opts.Field)
		if t.slop > 0 {
			mq.Slop = t.slop
		}
		return mq, nil
	}

	exact := query.NewMatchPhraseQuery(t.text)
	exact.SetField(ps.opts.Field)
	exact.SetBoost(ps.opts.PhraseBoost)

	slopped := query.NewMatchPhraseQuery(t.text)
	slopped.SetField(ps.opts.Field)
	slopped.Slop = ps.opts.PhraseSlop

	dq := query.NewDisjunctionQuery([]query.Query{exact, slopped})
	dq.SetMin(1)
	return dq, nil
}

// termQuery dispatches a bare term to a match, prefix, or wildcard query
// depending on leading/trailing '*'.
func (ps *parseState) termQuery(text string) (query.Query, error) {
	switch {
	case strings.HasPrefix(text, "*") && len(text) > 1 && !strings.HasSuffix(text, "*"):
		return ps.leadingWildcard(text[1:])
	case strings.HasSuffix(text, "*") && len(text) > 1:
		return ps.prefixQuery(text[:len(text)-1])
	case strings.Contains(text, "*") || strings.Contains(text, "?"):
		wq := query.NewWildcardQuery(ps.normalize(text))
		wq.SetField(ps.opts.Field)
		return wq, nil
	default:
		mq := query.NewMatchQuery(text)
		mq.SetField(ps.opts.Field)
		return mq, nil
	}
}

// normalize folds a raw prefix/wildcard term the same way the index
// analyzer would for an analyzed field, and leaves it untouched for a
// keyword field.
func (ps *parseState) normalize(s string) string {
	if ps.opts.Keyword {
		return s
	}
	return textanalysis.Fold(s)
}

// prefixQuery implements the adaptive-prefix rewrite:
// len(p) >= 4 scores the top 50 most-frequent matching terms by blended
// term frequency; shorter prefixes use a flat constant-score prefix query.
func (ps *parseState) prefixQuery(prefix string) (query.Query, error) {
	normalized := ps.normalize(prefix)

	if len(normalized) < adaptivePrefixMinLen || ps.opts.Terms == nil {
		pq := query.NewPrefixQuery(normalized)
		pq.SetField(ps.opts.Field)
		return pq, nil
	}

	terms, err := ps.opts.Terms.TermsWithPrefix(ps.opts.Field, normalized, adaptivePrefixMaxTerms)
	if err != nil {
		// Degrade to constant-score rather than fail the whole query: a
		// term-dictionary error shouldn't turn into INVALID_QUERY_SYNTAX.
		pq := query.NewPrefixQuery(normalized)
		pq.SetField(ps.opts.Field)
		return pq, nil
	}
	if len(terms) == 0 {
		// No matches; a disjunction of zero terms would match everything
		// under some bleve versions, so return an explicit prefix query
		// that will legitimately match nothing.
		pq := query.NewPrefixQuery(normalized)
		pq.SetField(ps.opts.Field)
		return pq, nil
	}

	return blendedPrefixDisjunction(terms, ps.opts.Field), nil
}

// blendedPrefixDisjunction scores each candidate term so that
// shorter/more common terms rank above long/rare ones:
// "blended term-frequency scoring, so shorter/more common matching terms
// rank above long/rare ones." Boost is a function of both frequency rank
// and term length: frequency contributes a log-scaled weight, length
// contributes an inverse penalty.
func blendedPrefixDisjunction(terms []TermFreq, field string) query.Query {
	sorted := make([]TermFreq, len(terms))
	copy(sorted, terms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Freq > sorted[j].Freq })

	maxFreq := sorted[0].Freq
	if maxFreq < 1 {
		maxFreq = 1
	}

	disjuncts := make([]query.Query, 0, len(sorted))
	for _, t := range sorted {
		freqWeight := 1.0 + math.Log1p(float64(t.Freq))/math.Log1p(float64(maxFreq))
		lengthPenalty := 1.0 / (1.0 + math.Log1p(float64(len(t.Term))))
		tq := query.NewTermQuery(t.Term)
		tq.SetField(field)
		tq.SetBoost(freqWeight * (1.0 + lengthPenalty))
		disjuncts = append(disjuncts, tq)
	}
	dq := query.NewDisjunctionQuery(disjuncts)
	dq.SetMin(1)
	return dq
}

// leadingWildcard rewrites "*suffix" into a prefix query against
// opts.ReversedField for reverse(suffix).
func (ps *parseState) leadingWildcard(suffix string) (query.Query, error) {
	reversed := textanalysis.ReverseString(ps.normalize(suffix))
	if ps.opts.ReversedField == "" {
		wq := query.NewWildcardQuery("*" + ps.normalize(suffix))
		wq.SetField(ps.opts.Field)
		return wq, nil
	}

	if len(reversed) >= adaptivePrefixMinLen && ps.opts.Terms != nil {
		terms, err := ps.opts.Terms.TermsWithPrefix(ps.opts.ReversedField, reversed, adaptivePrefixMaxTerms)
		if err == nil && len(terms) > 0 {
			return blendedPrefixDisjunction(terms, ps.opts.ReversedField), nil
		}
	}

	pq := query.NewPrefixQuery(reversed)
	pq.SetField(ps.opts.ReversedField)
	return pq, nil
}
