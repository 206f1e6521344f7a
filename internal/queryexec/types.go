// Package queryexec is the query executor: it builds the composite
// content+stemmed-field query, applies structured filters and
// drill-sideways facets, sorts and paginates, and produces passage
// highlights from term-vector locations.
package queryexec

import (
	"time"

	"github.com/doclex/doclex/internal/docfields"
)

// SortBy selects the primary sort key.
type SortBy string

const (
	SortScore        SortBy = "_score"
	SortModifiedDate SortBy = "modified_date"
	SortCreatedDate  SortBy = "created_date"
	SortFileSize     SortBy = "file_size"
)

// SortOrder is the direction for a non-default SortBy.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterOp is the comparison a Filter applies.
type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpIn    FilterOp = "in"
	OpNot   FilterOp = "not"
	OpNotIn FilterOp = "not_in"
	OpRange FilterOp = "range"
)

// Filter is one structured filter clause.
type Filter struct {
	Field  string
	Op     FilterOp
	Value  string
	Values []string
	// From/To bound a range filter. Accepted forms: ISO-8601 dates
	// (YYYY-MM-DD[, Thh:mm:ss[Z]]) for date fields, or a plain integer for
	// file_size. An empty From means -inf; an empty To means +inf.
	From string
	To   string
}

// Request is one search call.
type Request struct {
	Query    string
	Page     int
	PageSize int

	Filters []Filter
	Facets  []string

	SortBy    SortBy
	SortOrder SortOrder

	MaxPassages          int
	MaxPassageCharLength int

	// Language overrides stemmed-field routing: only
	// content_stemmed_<Language> is queried, at weight 1.0.
	Language string

	// Deadline is a soft execution deadline; on expiry the
	// executor returns its best partial result with Partial=true rather
	// than erroring.
	Deadline time.Time
}

const (
	minPageSize     = 1
	maxPageSize     = 100
	defaultPageSize = 10

	defaultMaxPassages          = 3
	defaultMaxPassageCharLength = 200
)

// normalize clamps page/pageSize and fills in highlighting defaults;
// out-of-range values are clamped, not rejected.
func (r Request) normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = defaultPageSize
	}
	if r.PageSize < minPageSize {
		r.PageSize = minPageSize
	}
	if r.PageSize > maxPageSize {
		r.PageSize = maxPageSize
	}
	if r.SortBy == "" {
		r.SortBy = SortScore
	}
	if r.SortOrder == "" {
		r.SortOrder = SortDesc
	}
	if r.MaxPassages <= 0 {
		r.MaxPassages = defaultMaxPassages
	}
	if r.MaxPassageCharLength <= 0 {
		r.MaxPassageCharLength = defaultMaxPassageCharLength
	}
	return r
}

// Span is a character range within a Passage's Text to be emphasized as
// a match.
type Span struct {
	Start int
	End   int
}

// Passage is one highlighted excerpt of a hit's content field.
type Passage struct {
	Text          string
	Offset        int // byte offset of Text within the source document
	Score         float64
	MatchedTerms  []string
	TermCoverage  float64 // matched-unique-terms / query-unique-terms
	Emphasis      []Span  // ranges within Text, empty for a fallback passage
	IsFallback    bool
}

// Hit is one search result.
type Hit struct {
	FilePath string
	Score    float64
	Fields   map[string]interface{}
	Passages []Passage
}

// FacetCount is one value/count pair within a FacetResult.
type FacetCount struct {
	Value string
	Count int
}

// FacetResult is the drill-sideways facet breakdown for one field.
type FacetResult struct {
	Field  string
	Counts []FacetCount
}

// ActiveFilterResult reports, for one applied filter, the hit count that
// filter alone (plus every filter before it) would have produced.
type ActiveFilterResult struct {
	Field      string
	Op         string
	MatchCount uint64
}

// Response is the result of one Search call.
type Response struct {
	Hits            []Hit
	TotalHits       uint64
	Page            int
	PageSize        int
	Facets          []FacetResult
	ActiveFilters   []ActiveFilterResult
	ExecutionTimeMs int64
	Partial         bool
}

// StoredFields are the fields returned verbatim for each hit, beyond
// file_path (always returned as the hit's ID).
var StoredFields = []string{
	docfields.FieldFileName,
	docfields.FieldFileExtension,
	docfields.FieldFileType,
	docfields.FieldFileSize,
	docfields.FieldCreatedDate,
	docfields.FieldModifiedDate,
	docfields.FieldIndexedDate,
	docfields.FieldLanguage,
	docfields.FieldContentHash,
	docfields.FieldTitle,
	docfields.FieldAuthor,
	docfields.FieldCreator,
	docfields.FieldSubject,
	docfields.FieldKeywords,
}

// facetableFields are the fields that may appear in Request.Facets.
var facetableFields = map[string]bool{
	docfields.FieldFileExtension: true,
	docfields.FieldFileType:      true,
	docfields.FieldLanguage:      true,
	docfields.FieldAuthor:        true,
}

// filterableFields maps a field name to whether it is a numeric
// (doc-values range) field; keyword fields use term equality.
var filterableFields = map[string]bool{
	docfields.FieldFileExtension: false,
	docfields.FieldFileType:      false,
	docfields.FieldLanguage:      false,
	docfields.FieldFilePath:      false,
	docfields.FieldFileName:      false,
	docfields.FieldAuthor:        false,
	docfields.FieldFileSize:      true,
	docfields.FieldCreatedDate:   true,
	docfields.FieldModifiedDate:  true,
	docfields.FieldIndexedDate:   true,
}
