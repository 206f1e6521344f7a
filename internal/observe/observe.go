// Package observe implements the observability surface:
// suggestTerms, getTopTerms, getIndexStats, and query profiling. It
// reads through the same searcher the query executor uses and never
// touches the writer.
package observe

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/queryexec"
	"github.com/doclex/doclex/internal/queryparse"
	"github.com/doclex/doclex/internal/textanalysis"
)

// suggestCacheSize bounds the hot-prefix cache. Entries are keyed by
// (field, prefix) and invalidated by commit sequence, so a small cache
// is enough to absorb the typeahead pattern of repeated prefixes.
const suggestCacheSize = 256

// termScanCap bounds how many dictionary entries a single suggest/top
// request will walk before ranking.
const termScanCap = 50000

// TermCount is one term with its aggregated document frequency.
type TermCount struct {
	Term    string `json:"term"`
	DocFreq int    `json:"docFreq"`
}

// SuggestResult is the suggestTerms response.
type SuggestResult struct {
	Terms        []TermCount `json:"terms"`
	TotalMatched int         `json:"totalMatched"`
}

// TopTermsResult is the getTopTerms response.
type TopTermsResult struct {
	Terms           []TermCount `json:"terms"`
	UniqueTermCount int         `json:"uniqueTermCount"`
}

// FieldValueCounts is the top values of one facetable field, reported by
// getIndexStats.
type FieldValueCounts struct {
	Field  string      `json:"field"`
	Values []TermCount `json:"values"`
}

// DateHint is the min/max observed value of one date field, epoch millis.
type DateHint struct {
	Field string `json:"field"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
}

// RecentQueryStats summarizes recent query volume and latency, supplied
// by the telemetry store when one is wired in.
type RecentQueryStats struct {
	Count int     `json:"count"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
}

// QueryStatsSource provides RecentQueryStats; implemented by
// internal/telemetry. Nil disables the recentQueries block.
type QueryStatsSource interface {
	RecentStats(window time.Duration) (*RecentQueryStats, error)
}

// IndexStats is the getIndexStats response.
type IndexStats struct {
	DocumentCount uint64             `json:"documentCount"`
	SegmentCount  int                `json:"segmentCount"`
	DiskBytes     int64              `json:"diskBytes"`
	FacetTops     []FieldValueCounts `json:"facetTops"`
	DateHints     []DateHint         `json:"dateHints"`
	RecentQueries *RecentQueryStats  `json:"recentQueries,omitempty"`
}

type suggestEntry struct {
	seq    int64
	result SuggestResult
}

// Observer serves the observability operations over the index service's
// read handle.
type Observer struct {
	store   *indexstore.Store
	exec    *queryexec.Executor
	stats   QueryStatsSource
	suggest *lru.Cache[string, suggestEntry]
}

// New builds an Observer. stats may be nil.
func New(store *indexstore.Store, exec *queryexec.Executor, stats QueryStatsSource) *Observer {
	cache, _ := lru.New[string, suggestEntry](suggestCacheSize)
	return &Observer{store: store, exec: exec, stats: stats, suggest: cache}
}

// SuggestTerms enumerates field's term dictionary from the first term >=
// prefix and returns the top limit entries by document frequency.
// Analyzed fields fold the prefix before the seek; keyword fields use
// it as-is; numeric doc-values fields are rejected.
func (o *Observer) SuggestTerms(field, prefix string, limit int) (*SuggestResult, error) {
	if !docfields.IsTermEnumerableField(field) {
		return nil, doclexerr.InvalidArgument("field is not term-enumerable: " + field)
	}
	if prefix == "" {
		return nil, doclexerr.InvalidArgument("prefix must be non-empty")
	}
	if limit <= 0 {
		limit = 10
	}

	if !docfields.KeywordFields[field] {
		prefix = textanalysis.Fold(prefix)
	}

	key := field + "\x00" + prefix
	seq := o.store.CommitSequence()
	if entry, ok := o.suggest.Get(key); ok && entry.seq == seq {
		return clampSuggest(entry.result, limit), nil
	}

	terms, err := o.store.TermsWithPrefix(field, prefix, termScanCap)
	if err != nil {
		return nil, doclexerr.Internal("term dictionary enumeration failed", err)
	}

	result := SuggestResult{TotalMatched: len(terms)}
	ranked := make([]queryparse.TermFreq, len(terms))
	copy(ranked, terms)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Freq > ranked[j].Freq })
	for _, t := range ranked {
		result.Terms = append(result.Terms, TermCount{Term: t.Term, DocFreq: t.Freq})
	}

	o.suggest.Add(key, suggestEntry{seq: seq, result: result})
	return clampSuggest(result, limit), nil
}

func clampSuggest(r SuggestResult, limit int) *SuggestResult {
	out := SuggestResult{TotalMatched: r.TotalMatched}
	if len(r.Terms) > limit {
		out.Terms = append(out.Terms, r.Terms[:limit]...)
	} else {
		out.Terms = append(out.Terms, r.Terms...)
	}
	return &out
}

// GetTopTerms enumerates field's whole term dictionary and returns the
// limit most frequent terms with counts.
func (o *Observer) GetTopTerms(field string, limit int) (*TopTermsResult, error) {
	if !docfields.IsTermEnumerableField(field) {
		return nil, doclexerr.InvalidArgument("field is not term-enumerable: " + field)
	}
	if limit <= 0 {
		limit = 10
	}

	terms, err := o.store.AllTerms(field, termScanCap)
	if err != nil {
		return nil, doclexerr.Internal("term dictionary enumeration failed", err)
	}

	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Freq > terms[j].Freq })
	result := &TopTermsResult{UniqueTermCount: len(terms)}
	for _, t := range terms {
		if len(result.Terms) >= limit {
			break
		}
		result.Terms = append(result.Terms, TermCount{Term: t.Term, DocFreq: t.Freq})
	}
	return result, nil
}

// facetTopFields are the fields getIndexStats reports value breakdowns
// for, mirroring the facetable set of the query executor.
var facetTopFields = []string{
	docfields.FieldFileExtension,
	docfields.FieldFileType,
	docfields.FieldLanguage,
	docfields.FieldAuthor,
}

// dateHintFields are the date fields getIndexStats reports min/max for.
var dateHintFields = []string{
	docfields.FieldCreatedDate,
	docfields.FieldModifiedDate,
	docfields.FieldIndexedDate,
}

const facetTopN = 10

// GetIndexStats reports document count, segment count, disk bytes,
// per-facet-field value counts, and date-field min/max hints,
// plus recent query volume/latency when a telemetry source is wired.
func (o *Observer) GetIndexStats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{}

	count, err := o.store.DocCount()
	if err != nil {
		return nil, doclexerr.Internal("doc count failed", err)
	}
	stats.DocumentCount = count
	stats.SegmentCount = o.segmentCount()
	stats.DiskBytes = o.diskBytes()

	for _, field := range facetTopFields {
		counts, err := o.facetValues(ctx, field)
		if err != nil {
			return nil, err
		}
		if len(counts) == 0 {
			continue
		}
		stats.FacetTops = append(stats.FacetTops, FieldValueCounts{Field: field, Values: counts})
	}

	for _, field := range dateHintFields {
		hint, ok, err := o.dateHint(ctx, field)
		if err != nil {
			return nil, err
		}
		if ok {
			stats.DateHints = append(stats.DateHints, hint)
		}
	}

	if o.stats != nil {
		if recent, err := o.stats.RecentStats(24 * time.Hour); err == nil && recent != nil {
			stats.RecentQueries = recent
		}
	}
	return stats, nil
}

func (o *Observer) facetValues(ctx context.Context, field string) ([]TermCount, error) {
	sreq := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 0, 0, false)
	sreq.AddFacet(field, bleve.NewFacetRequest(field, facetTopN))
	result, err := o.store.Index().SearchInContext(ctx, sreq)
	if err != nil {
		return nil, doclexerr.Internal("facet stats failed", err)
	}
	var counts []TermCount
	if fr, ok := result.Facets[field]; ok && fr.Terms != nil {
		for _, t := range fr.Terms.Terms() {
			counts = append(counts, TermCount{Term: t.Term, DocFreq: t.Count})
		}
	}
	return counts, nil
}

// dateHint finds field's min and max via two single-hit sorted searches.
func (o *Observer) dateHint(ctx context.Context, field string) (DateHint, bool, error) {
	min, ok, err := o.boundary(ctx, field, false)
	if err != nil || !ok {
		return DateHint{}, false, err
	}
	max, ok, err := o.boundary(ctx, field, true)
	if err != nil || !ok {
		return DateHint{}, false, err
	}
	return DateHint{Field: field, Min: min, Max: max}, true, nil
}

func (o *Observer) boundary(ctx context.Context, field string, descending bool) (int64, bool, error) {
	sreq := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 1, 0, false)
	sreq.Fields = []string{field}
	if descending {
		sreq.SortBy([]string{"-" + field})
	} else {
		sreq.SortBy([]string{field})
	}
	result, err := o.store.Index().SearchInContext(ctx, sreq)
	if err != nil {
		return 0, false, doclexerr.Internal("date hint search failed", err)
	}
	if len(result.Hits) == 0 {
		return 0, false, nil
	}
	if v, ok := result.Hits[0].Fields[field].(float64); ok {
		return int64(v), true, nil
	}
	return 0, false, nil
}

// segmentCount counts the on-disk segment files of a scorch index, or
// reports 1 for an in-memory index (a single live segment view).
func (o *Observer) segmentCount() int {
	dir := o.store.Dir()
	if dir == "" {
		return 1
	}
	entries, err := os.ReadDir(filepath.Join(dir, "store"))
	if err != nil {
		return 1
	}
	n := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".zap" {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// diskBytes sums the index directory's file sizes; 0 for in-memory.
func (o *Observer) diskBytes() int64 {
	dir := o.store.Dir()
	if dir == "" {
		return 0
	}
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
