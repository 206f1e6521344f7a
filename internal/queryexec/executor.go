package queryexec

import (
	"context"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/queryparse"
)

// Executor is the query executor: it builds the composite
// content+stemmed query, applies filters and drill-sideways facets, sorts,
// paginates, and highlights.
type Executor struct {
	store  *indexstore.Store
	parser *queryparse.Parser
}

// NewExecutor wires an Executor against the index service's live searcher.
func NewExecutor(store *indexstore.Store) *Executor {
	return &Executor{store: store, parser: queryparse.New()}
}

// Search executes req against the current index snapshot.
func (e *Executor) Search(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	req = req.normalize()

	mainQuery, err := e.buildMainQuery(req.Query, req.Language)
	if err != nil {
		return Response{}, err
	}

	filterQueries := make([]query.Query, len(req.Filters))
	for i, f := range req.Filters {
		fq, err := buildFilterQuery(f)
		if err != nil {
			return Response{}, err
		}
		filterQueries[i] = fq
	}

	finalQuery := combine(mainQuery, filterQueries)

	idx := e.store.Index()

	for _, facetField := range req.Facets {
		if !facetableFields[facetField] {
			return Response{}, doclexerr.InvalidField(facetField)
		}
	}

	sreq := bleve.NewSearchRequestOptions(finalQuery, req.PageSize, (req.Page-1)*req.PageSize, false)
	// content is fetched for passage highlighting only; it is stripped back
	// out of Hit.Fields before the response is returned.
	sreq.Fields = append(append([]string{}, StoredFields...), docfields.FieldContent)
	sreq.IncludeLocations = true
	applySort(sreq, req)

	sctx, cancel := searchCtx(ctx, req.Deadline)
	defer cancel()
	result, err := idx.SearchInContext(sctx, sreq)
	if err != nil {
		if !req.Deadline.IsZero() && sctx.Err() == context.DeadlineExceeded {
			// The search was cut short by the soft deadline before any hits
			// were collected; report an empty partial page, not an error.
			return Response{
				Hits:            []Hit{},
				Page:            req.Page,
				PageSize:        req.PageSize,
				ExecutionTimeMs: time.Since(start).Milliseconds(),
				Partial:         true,
			}, nil
		}
		return Response{}, doclexerr.Internal("search execution failed", err)
	}

	queryTerms := queryparse.ExtractTerms(req.Query)

	hits := make([]Hit, 0, len(result.Hits))
	for _, dm := range result.Hits {
		passages := e.buildPassages(dm, req, queryTerms)
		delete(dm.Fields, docfields.FieldContent)
		hits = append(hits, Hit{
			FilePath: dm.ID,
			Score:    dm.Score,
			Fields:   dm.Fields,
			Passages: passages,
		})
	}

	facets, err := e.computeFacets(ctx, mainQuery, filterQueries, req)
	if err != nil {
		return Response{}, err
	}

	activeFilters, err := e.computeActiveFilters(ctx, mainQuery, filterQueries, req.Filters)
	if err != nil {
		return Response{}, err
	}

	partial := !req.Deadline.IsZero() && time.Now().After(req.Deadline)

	return Response{
		Hits:            hits,
		TotalHits:       result.Total,
		Page:            req.Page,
		PageSize:        req.PageSize,
		Facets:          facets,
		ActiveFilters:   activeFilters,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Partial:         partial,
	}, nil
}

// searchCtx attaches req.Deadline as a context deadline, if set, so a long
// search is cut short and the caller marks the response partial.
func searchCtx(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// combine ANDs the main query with every filter query.
func combine(main query.Query, filters []query.Query) query.Query {
	if len(filters) == 0 {
		return main
	}
	must := append([]query.Query{main}, filters...)
	return query.NewConjunctionQuery(must)
}

// withoutField returns the subset of filterQueries whose source Filter does
// not target excludeField, implementing the drill-sideways rule: a
// facet's own counts are computed with every filter except those on its
// own field.
func withoutField(filterQueries []query.Query, filters []Filter, excludeField string) []query.Query {
	out := make([]query.Query, 0, len(filterQueries))
	for i, fq := range filterQueries {
		if filters[i].Field == excludeField {
			continue
		}
		out = append(out, fq)
	}
	return out
}

// applySort sets the bleve sort order: primary by req.SortBy, tie-broken by
// _score descending whenever the primary key isn't already _score.
func applySort(sreq *bleve.SearchRequest, req Request) {
	if req.SortBy == SortScore {
		sreq.SortBy([]string{"-_score"})
		return
	}
	dir := "-"
	if req.SortOrder == SortAsc {
		dir = ""
	}
	sreq.SortBy([]string{dir + string(req.SortBy), "-_score"})
}

// runFacet is retained for callers that want raw counts without the
// Response.Facets shape; computeFacets below is the one Search uses.
func (e *Executor) runFacet(ctx context.Context, q query.Query, field string) (uint64, []FacetCount, error) {
	sreq := bleve.NewSearchRequestOptions(q, 0, 0, false)
	sreq.AddFacet(field, bleve.NewFacetRequest(field, maxFacetTerms))
	result, err := e.store.Index().SearchInContext(ctx, sreq)
	if err != nil {
		return 0, nil, doclexerr.Internal("facet search failed", err)
	}
	var counts []FacetCount
	if fr, ok := result.Facets[field]; ok && fr.Terms != nil {
		for _, t := range fr.Terms.Terms() {
			counts = append(counts, FacetCount{Value: t.Term, Count: t.Count})
		}
	}
	return result.Total, counts, nil
}

const maxFacetTerms = 64

// computeFacets builds the drill-sideways facet breakdown for every
// requested field.
func (e *Executor) computeFacets(ctx context.Context, mainQuery query.Query, filterQueries []query.Query, req Request) ([]FacetResult, error) {
	if len(req.Facets) == 0 {
		return nil, nil
	}
	out := make([]FacetResult, 0, len(req.Facets))
	for _, field := range req.Facets {
		sideways := combine(mainQuery, withoutField(filterQueries, req.Filters, field))
		_, counts, err := e.runFacet(ctx, sideways, field)
		if err != nil {
			return nil, err
		}
		out = append(out, FacetResult{Field: field, Counts: counts})
	}
	return out, nil
}

// computeActiveFilters reports, for each applied filter in order, the hit
// count of the query extended through that filter.
func (e *Executor) computeActiveFilters(ctx context.Context, mainQuery query.Query, filterQueries []query.Query, filters []Filter) ([]ActiveFilterResult, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	out := make([]ActiveFilterResult, 0, len(filters))
	for i, f := range filters {
		q := combine(mainQuery, filterQueries[:i+1])
		sreq := bleve.NewSearchRequestOptions(q, 0, 0, false)
		result, err := e.store.Index().SearchInContext(ctx, sreq)
		if err != nil {
			return nil, doclexerr.Internal("active-filter count failed", err)
		}
		out = append(out, ActiveFilterResult{Field: f.Field, Op: string(f.Op), MatchCount: result.Total})
	}
	return out, nil
}

// Compile builds the composite main query and the per-filter queries for
// req without executing anything. Profiling uses it to report
// the query structure after rewrites and to replay filters incrementally.
func (e *Executor) Compile(req Request) (query.Query, []query.Query, error) {
	req = req.normalize()
	mainQuery, err := e.buildMainQuery(req.Query, req.Language)
	if err != nil {
		return nil, nil, err
	}
	filterQueries := make([]query.Query, len(req.Filters))
	for i, f := range req.Filters {
		fq, err := buildFilterQuery(f)
		if err != nil {
			return nil, nil, err
		}
		filterQueries[i] = fq
	}
	return mainQuery, filterQueries, nil
}

// GetDocument fetches one document's stored fields by file_path, used by
// the getDocumentDetails operation.
func (e *Executor) GetDocument(ctx context.Context, path string) (map[string]interface{}, error) {
	idx := e.store.Index()
	sreq := bleve.NewSearchRequestOptions(termEqualsQuery(docfields.FieldFilePath, path), 1, 0, false)
	sreq.Fields = append([]string{docfields.FieldContent}, StoredFields...)
	result, err := idx.SearchInContext(ctx, sreq)
	if err != nil {
		return nil, doclexerr.Internal("document lookup failed", err)
	}
	if len(result.Hits) == 0 {
		return nil, doclexerr.NotFound("no document indexed at path: " + path)
	}
	return result.Hits[0].Fields, nil
}

func termEqualsQuery(field, value string) query.Query {
	tq := query.NewTermQuery(value)
	tq.SetField(field)
	return tq
}
