package observe

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/queryexec"
	"github.com/doclex/doclex/internal/queryparse"
)

// Rarity labels a term's document frequency relative to the corpus
// size: docFreq/totalDocs below 1% is rare, 1-20% common, above that
// very_common.
type Rarity string

const (
	RarityRare       Rarity = "rare"
	RarityCommon     Rarity = "common"
	RarityVeryCommon Rarity = "very_common"
)

const (
	rareUpperBound   = 0.01
	commonUpperBound = 0.20
)

func rarityFor(docFreq int, totalDocs uint64) Rarity {
	if totalDocs == 0 {
		return RarityRare
	}
	ratio := float64(docFreq) / float64(totalDocs)
	switch {
	case ratio < rareUpperBound:
		return RarityRare
	case ratio <= commonUpperBound:
		return RarityCommon
	default:
		return RarityVeryCommon
	}
}

// ProfileFlags selects the optional deeper profiling levels.
type ProfileFlags struct {
	// FilterImpact (level 2) re-runs the query with filters added
	// incrementally and reports each filter's hit-count reduction.
	FilterImpact bool

	// ExplainDocs (level 3) requests scoring explanations for the top N
	// documents and reduces them to per-clause contribution percentages.
	ExplainDocs int

	// FacetCost times each requested facet's side computation.
	FacetCost bool
}

// TermProfile is one query term's dictionary statistics.
type TermProfile struct {
	Term    string  `json:"term"`
	DocFreq int     `json:"docFreq"`
	Rarity  Rarity  `json:"rarity"`
	Ratio   float64 `json:"ratio"`
}

// FilterImpact reports the hit count after each filter is applied in
// request order.
type FilterImpact struct {
	Field     string `json:"field"`
	Op        string `json:"op"`
	HitsAfter uint64 `json:"hitsAfter"`
	Removed   uint64 `json:"removed"`
}

// ClauseContribution is one clause's share of a document's score.
type ClauseContribution struct {
	Clause  string  `json:"clause"`
	Percent float64 `json:"percent"`
}

// DocExplanation is the reduced scoring explanation for one hit.
type DocExplanation struct {
	FilePath      string               `json:"file_path"`
	Score         float64              `json:"score"`
	Contributions []ClauseContribution `json:"contributions"`
}

// FacetCost is the measured cost of one facet computation.
type FacetCost struct {
	Field       string `json:"field"`
	ValueCount  int    `json:"valueCount"`
	ElapsedUs   int64  `json:"elapsedUs"`
}

// ProfileResult is the profileQuery response.
type ProfileResult struct {
	QueryStructure string           `json:"queryStructure"`
	Terms          []TermProfile    `json:"terms"`
	TotalDocs      uint64           `json:"totalDocs"`
	EstimatedCost  int              `json:"estimatedCost"`
	FilterImpact   []FilterImpact   `json:"filterImpact,omitempty"`
	Explanations   []DocExplanation `json:"explanations,omitempty"`
	FacetCosts     []FacetCost      `json:"facetCosts,omitempty"`
}

// maxExplainDocs bounds level-3 explanation fan-out.
const maxExplainDocs = 10

// ProfileQuery analyses req without returning hits: level 1 (always on)
// reports the rewritten query structure, per-term document frequency
// with a rarity label, and a cost estimate; levels 2 and 3 are enabled
// by flags.
func (o *Observer) ProfileQuery(ctx context.Context, req queryexec.Request, flags ProfileFlags) (*ProfileResult, error) {
	mainQuery, filterQueries, err := o.exec.Compile(req)
	if err != nil {
		return nil, err
	}

	totalDocs, err := o.store.DocCount()
	if err != nil {
		return nil, doclexerr.Internal("doc count failed", err)
	}

	result := &ProfileResult{
		QueryStructure: RenderQuery(mainQuery),
		TotalDocs:      totalDocs,
	}

	for _, term := range queryparse.ExtractTerms(req.Query) {
		df := o.exactDocFreq(docfields.FieldContent, term)
		result.Terms = append(result.Terms, TermProfile{
			Term:    term,
			DocFreq: df,
			Rarity:  rarityFor(df, totalDocs),
			Ratio:   ratio(df, totalDocs),
		})
		result.EstimatedCost += df
	}

	if flags.FilterImpact && len(filterQueries) > 0 {
		impact, err := o.filterImpact(ctx, mainQuery, filterQueries, req.Filters)
		if err != nil {
			return nil, err
		}
		result.FilterImpact = impact
	}

	if flags.ExplainDocs > 0 {
		n := flags.ExplainDocs
		if n > maxExplainDocs {
			n = maxExplainDocs
		}
		explanations, err := o.explain(ctx, mainQuery, filterQueries, n)
		if err != nil {
			return nil, err
		}
		result.Explanations = explanations
	}

	if flags.FacetCost && len(req.Facets) > 0 {
		costs, err := o.facetCosts(ctx, mainQuery, req.Facets)
		if err != nil {
			return nil, err
		}
		result.FacetCosts = costs
	}

	return result, nil
}

func ratio(docFreq int, totalDocs uint64) float64 {
	if totalDocs == 0 {
		return 0
	}
	return float64(docFreq) / float64(totalDocs)
}

// exactDocFreq looks one term up in field's dictionary.
func (o *Observer) exactDocFreq(field, term string) int {
	terms, err := o.store.TermsWithPrefix(field, term, 1)
	if err != nil || len(terms) == 0 {
		return 0
	}
	if terms[0].Term != term {
		return 0
	}
	return terms[0].Freq
}

// filterImpact replays the query with filters added one at a time, in
// request order, reporting each filter's reduction.
func (o *Observer) filterImpact(ctx context.Context, mainQuery query.Query, filterQueries []query.Query, filters []queryexec.Filter) ([]FilterImpact, error) {
	prev, err := o.countHits(ctx, mainQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make([]FilterImpact, 0, len(filterQueries))
	for i, f := range filters {
		hits, err := o.countHits(ctx, mainQuery, filterQueries[:i+1])
		if err != nil {
			return nil, err
		}
		removed := uint64(0)
		if prev > hits {
			removed = prev - hits
		}
		out = append(out, FilterImpact{
			Field:     f.Field,
			Op:        string(f.Op),
			HitsAfter: hits,
			Removed:   removed,
		})
		prev = hits
	}
	return out, nil
}

func (o *Observer) countHits(ctx context.Context, main query.Query, filters []query.Query) (uint64, error) {
	q := main
	if len(filters) > 0 {
		q = query.NewConjunctionQuery(append([]query.Query{main}, filters...))
	}
	sreq := bleve.NewSearchRequestOptions(q, 0, 0, false)
	result, err := o.store.Index().SearchInContext(ctx, sreq)
	if err != nil {
		return 0, doclexerr.Internal("filter-impact count failed", err)
	}
	return result.Total, nil
}

// explain runs the query with scoring explanations enabled and reduces
// each hit's explanation tree to per-clause contribution percentages.
func (o *Observer) explain(ctx context.Context, main query.Query, filters []query.Query, n int) ([]DocExplanation, error) {
	q := main
	if len(filters) > 0 {
		q = query.NewConjunctionQuery(append([]query.Query{main}, filters...))
	}
	sreq := bleve.NewSearchRequestOptions(q, n, 0, true)
	result, err := o.store.Index().SearchInContext(ctx, sreq)
	if err != nil {
		return nil, doclexerr.Internal("explain search failed", err)
	}

	out := make([]DocExplanation, 0, len(result.Hits))
	for _, hit := range result.Hits {
		de := DocExplanation{FilePath: hit.ID, Score: hit.Score}
		if hit.Expl != nil {
			de.Contributions = reduceExplanation(hit.Expl)
		}
		out = append(out, de)
	}
	return out, nil
}

// reduceExplanation flattens an explanation tree one level deep into
// clause -> percentage-of-total-score.
func reduceExplanation(expl *search.Explanation) []ClauseContribution {
	if expl.Value == 0 || len(expl.Children) == 0 {
		return []ClauseContribution{{Clause: expl.Message, Percent: 100}}
	}
	var out []ClauseContribution
	for _, child := range expl.Children {
		out = append(out, ClauseContribution{
			Clause:  child.Message,
			Percent: 100 * child.Value / expl.Value,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percent > out[j].Percent })
	return out
}

func (o *Observer) facetCosts(ctx context.Context, main query.Query, facets []string) ([]FacetCost, error) {
	out := make([]FacetCost, 0, len(facets))
	for _, field := range facets {
		start := time.Now()
		sreq := bleve.NewSearchRequestOptions(main, 0, 0, false)
		sreq.AddFacet(field, bleve.NewFacetRequest(field, facetTopN))
		result, err := o.store.Index().SearchInContext(ctx, sreq)
		if err != nil {
			return nil, doclexerr.Internal("facet cost probe failed", err)
		}
		values := 0
		if fr, ok := result.Facets[field]; ok && fr.Terms != nil {
			values = len(fr.Terms.Terms())
		}
		out = append(out, FacetCost{
			Field:      field,
			ValueCount: values,
			ElapsedUs:  time.Since(start).Microseconds(),
		})
	}
	return out, nil
}

// RenderQuery prints a compiled bleve query tree in a compact
// field:value notation, the form profiling reports for the structure
// after rewrites (e.g. a leading-wildcard query shows up as
// content_reversed:gartrev*).
func RenderQuery(q query.Query) string {
	switch t := q.(type) {
	case *query.MatchAllQuery:
		return "*:*"
	case *query.MatchNoneQuery:
		return "-*:*"
	case *query.TermQuery:
		return withBoost(t.Field()+":"+t.Term, t.Boost())
	case *query.MatchQuery:
		return withBoost(t.Field()+":"+t.Match, t.Boost())
	case *query.PrefixQuery:
		return withBoost(t.Field()+":"+t.Prefix+"*", t.Boost())
	case *query.WildcardQuery:
		return withBoost(t.Field()+":"+t.Wildcard, t.Boost())
	case *query.MatchPhraseQuery:
		s := t.Field() + `:"` + t.MatchPhrase + `"`
		if t.Slop > 0 {
			s += fmt.Sprintf("~%d", t.Slop)
		}
		return withBoost(s, t.Boost())
	case *query.NumericRangeQuery:
		lo, hi := "-inf", "+inf"
		if t.Min != nil {
			lo = fmt.Sprintf("%g", *t.Min)
		}
		if t.Max != nil {
			hi = fmt.Sprintf("%g", *t.Max)
		}
		return fmt.Sprintf("%s:[%s TO %s]", t.Field(), lo, hi)
	case *query.DisjunctionQuery:
		return withBoost(renderList(t.Disjuncts, " OR "), t.Boost())
	case *query.ConjunctionQuery:
		return withBoost(renderList(t.Conjuncts, " AND "), t.Boost())
	case *query.BooleanQuery:
		var parts []string
		if t.Must != nil {
			parts = append(parts, "+"+RenderQuery(t.Must))
		}
		if t.Should != nil {
			parts = append(parts, RenderQuery(t.Should))
		}
		if t.MustNot != nil {
			parts = append(parts, "-"+RenderQuery(t.MustNot))
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return fmt.Sprintf("%T", q)
	}
}

func renderList(qs []query.Query, sep string) string {
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		parts = append(parts, RenderQuery(q))
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func withBoost(s string, boost float64) string {
	if boost == 1.0 {
		return s
	}
	return fmt.Sprintf("%s^%.1f", s, boost)
}
