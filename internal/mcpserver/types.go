package mcpserver

import (
	"time"

	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/observe"
	"github.com/doclex/doclex/internal/queryexec"
)

// FilterInput is one structured filter clause of a search request.
type FilterInput struct {
	Field  string   `json:"field" jsonschema:"field to filter on"`
	Op     string   `json:"op,omitempty" jsonschema:"eq (default), in, not, not_in, or range"`
	Value  string   `json:"value,omitempty" jsonschema:"value for eq/not"`
	Values []string `json:"values,omitempty" jsonschema:"values for in/not_in"`
	From   string   `json:"from,omitempty" jsonschema:"inclusive lower bound for range; empty means -inf"`
	To     string   `json:"to,omitempty" jsonschema:"inclusive upper bound for range; empty means +inf"`
}

// SearchInput is the search tool's input schema.
type SearchInput struct {
	Query                string        `json:"query" jsonschema:"the query string; empty or * matches everything"`
	Page                 int           `json:"page,omitempty" jsonschema:"1-based result page"`
	PageSize             int           `json:"pageSize,omitempty" jsonschema:"hits per page, clamped to 1..100"`
	Filters              []FilterInput `json:"filters,omitempty" jsonschema:"structured filters ANDed with the query"`
	Facets               []string      `json:"facets,omitempty" jsonschema:"facet fields: file_extension, file_type, language, author"`
	SortBy               string        `json:"sortBy,omitempty" jsonschema:"_score (default), modified_date, created_date, or file_size"`
	SortOrder            string        `json:"sortOrder,omitempty" jsonschema:"asc or desc"`
	MaxPassages          int           `json:"maxPassages,omitempty" jsonschema:"highlighted passages per hit"`
	MaxPassageCharLength int           `json:"maxPassageCharLength,omitempty" jsonschema:"max characters per passage"`
	Language             string        `json:"language,omitempty" jsonschema:"restrict stemmed-field routing to this language"`
	TimeoutMs            int           `json:"timeoutMs,omitempty" jsonschema:"soft deadline; on expiry a partial result is returned"`
}

// PassageOutput is one highlighted excerpt.
type PassageOutput struct {
	Text         string   `json:"text"`
	Offset       int      `json:"offset"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matchedTerms,omitempty"`
	TermCoverage float64  `json:"termCoverage"`
	IsFallback   bool     `json:"isFallback,omitempty"`
}

// HitOutput is one search result.
type HitOutput struct {
	FilePath string                 `json:"file_path"`
	Score    float64                `json:"score"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Passages []PassageOutput        `json:"passages,omitempty"`
}

// FacetOutput is the drill-sideways breakdown for one facet field.
type FacetOutput struct {
	Field  string              `json:"field"`
	Counts []observe.TermCount `json:"counts"`
}

// ActiveFilterOutput reports one applied filter's incremental hit count.
type ActiveFilterOutput struct {
	Field      string `json:"field"`
	Op         string `json:"op"`
	MatchCount uint64 `json:"matchCount"`
}

// SearchOutput is the search tool's result shape.
type SearchOutput struct {
	Hits            []HitOutput          `json:"hits"`
	TotalHits       uint64               `json:"totalHits"`
	Page            int                  `json:"page"`
	PageSize        int                  `json:"pageSize"`
	Facets          []FacetOutput        `json:"facets,omitempty"`
	ActiveFilters   []ActiveFilterOutput `json:"activeFilters,omitempty"`
	ExecutionTimeMs int64                `json:"executionTimeMs"`
	Partial         bool                 `json:"partial,omitempty"`
}

// GetDocumentDetailsInput fetches one document by primary key.
type GetDocumentDetailsInput struct {
	FilePath        string `json:"file_path" jsonschema:"the indexed path to fetch"`
	IncludePassages bool   `json:"includePassages,omitempty" jsonschema:"also return leading content passages"`
}

// GetDocumentDetailsOutput is the stored field set of one document.
type GetDocumentDetailsOutput struct {
	FilePath string                 `json:"file_path"`
	Fields   map[string]interface{} `json:"fields"`
	Passages []PassageOutput        `json:"passages,omitempty"`
}

// SuggestTermsInput drives typeahead over a field's term dictionary.
type SuggestTermsInput struct {
	Field  string `json:"field" jsonschema:"term-enumerable field, e.g. content or file_extension"`
	Prefix string `json:"prefix" jsonschema:"prefix to complete; folded for analyzed fields"`
	Limit  int    `json:"limit,omitempty" jsonschema:"max suggestions, default 10"`
}

// GetTopTermsInput requests a field's most frequent terms.
type GetTopTermsInput struct {
	Field string `json:"field" jsonschema:"term-enumerable field"`
	Limit int    `json:"limit,omitempty" jsonschema:"max terms, default 10"`
}

// GetIndexStatsInput has no parameters.
type GetIndexStatsInput struct{}

// ProfileQueryInput wraps a search request with profiling flags.
type ProfileQueryInput struct {
	SearchInput
	FilterImpact bool `json:"filterImpact,omitempty" jsonschema:"level 2: replay filters incrementally"`
	ExplainDocs  int  `json:"explainDocs,omitempty" jsonschema:"level 3: scoring explanations for the top N docs"`
	FacetCost    bool `json:"facetCost,omitempty" jsonschema:"time each requested facet"`
}

// CrawlerControlInput has no parameters.
type CrawlerControlInput struct{}

// CrawlerStatus is the pause/resume/status result shape.
type CrawlerStatus struct {
	State          string `json:"state"`
	FilesProcessed int    `json:"filesProcessed"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Deleted        int    `json:"deleted"`
	Skipped        int    `json:"skipped"`
	Errors         int    `json:"errors"`
	WatchActive    bool   `json:"watchActive"`
}

// CrawlerControl is what the engine exposes for the crawler tools; the
// server never holds a reference back into the crawler itself.
type CrawlerControl interface {
	PauseCrawler()
	ResumeCrawler()
	CrawlerStatus() CrawlerStatus
}

// toRequest converts the wire-shape input into the executor's request.
func (in SearchInput) toRequest() (queryexec.Request, error) {
	req := queryexec.Request{
		Query:                in.Query,
		Page:                 in.Page,
		PageSize:             in.PageSize,
		Facets:               in.Facets,
		SortBy:               queryexec.SortBy(in.SortBy),
		SortOrder:            queryexec.SortOrder(in.SortOrder),
		MaxPassages:          in.MaxPassages,
		MaxPassageCharLength: in.MaxPassageCharLength,
		Language:             in.Language,
	}
	if in.SortBy != "" {
		switch queryexec.SortBy(in.SortBy) {
		case queryexec.SortScore, queryexec.SortModifiedDate, queryexec.SortCreatedDate, queryexec.SortFileSize:
		default:
			return queryexec.Request{}, doclexerr.InvalidArgument("unknown sortBy: " + in.SortBy)
		}
	}
	if in.SortOrder != "" {
		switch queryexec.SortOrder(in.SortOrder) {
		case queryexec.SortAsc, queryexec.SortDesc:
		default:
			return queryexec.Request{}, doclexerr.InvalidArgument("unknown sortOrder: " + in.SortOrder)
		}
	}
	for _, f := range in.Filters {
		op := f.Op
		if op == "" {
			op = string(queryexec.OpEq)
		}
		req.Filters = append(req.Filters, queryexec.Filter{
			Field:  f.Field,
			Op:     queryexec.FilterOp(op),
			Value:  f.Value,
			Values: f.Values,
			From:   f.From,
			To:     f.To,
		})
	}
	if in.TimeoutMs > 0 {
		req.Deadline = time.Now().Add(time.Duration(in.TimeoutMs) * time.Millisecond)
	}
	return req, nil
}

func toSearchOutput(resp queryexec.Response) *SearchOutput {
	out := &SearchOutput{
		TotalHits:       resp.TotalHits,
		Page:            resp.Page,
		PageSize:        resp.PageSize,
		ExecutionTimeMs: resp.ExecutionTimeMs,
		Partial:         resp.Partial,
	}
	for _, h := range resp.Hits {
		out.Hits = append(out.Hits, HitOutput{
			FilePath: h.FilePath,
			Score:    h.Score,
			Fields:   h.Fields,
			Passages: toPassages(h.Passages),
		})
	}
	for _, f := range resp.Facets {
		fo := FacetOutput{Field: f.Field}
		for _, c := range f.Counts {
			fo.Counts = append(fo.Counts, observe.TermCount{Term: c.Value, DocFreq: c.Count})
		}
		out.Facets = append(out.Facets, fo)
	}
	for _, af := range resp.ActiveFilters {
		out.ActiveFilters = append(out.ActiveFilters, ActiveFilterOutput{
			Field:      af.Field,
			Op:         af.Op,
			MatchCount: af.MatchCount,
		})
	}
	return out
}

func toPassages(passages []queryexec.Passage) []PassageOutput {
	out := make([]PassageOutput, 0, len(passages))
	for _, p := range passages {
		out = append(out, PassageOutput{
			Text:         emphasize(p),
			Offset:       p.Offset,
			Score:        p.Score,
			MatchedTerms: p.MatchedTerms,
			TermCoverage: p.TermCoverage,
			IsFallback:   p.IsFallback,
		})
	}
	return out
}

// emphasize renders a passage's match spans with **...** markers, the
// form the conversational client displays directly.
func emphasize(p Passage) string {
	if len(p.Emphasis) == 0 {
		return p.Text
	}
	var out []byte
	last := 0
	for _, span := range p.Emphasis {
		if span.Start < last || span.End > len(p.Text) || span.Start > span.End {
			continue
		}
		out = append(out, p.Text[last:span.Start]...)
		out = append(out, "**"...)
		out = append(out, p.Text[span.Start:span.End]...)
		out = append(out, "**"...)
		last = span.End
	}
	out = append(out, p.Text[last:]...)
	return string(out)
}

// Passage aliases the executor's passage type for the emphasis helper.
type Passage = queryexec.Passage
