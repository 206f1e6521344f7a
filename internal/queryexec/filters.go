package queryexec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/doclex/doclex/internal/doclexerr"
)

// buildFilterQuery translates one Filter into a bleve query clause.
// Numeric fields (file_size, *_date) only accept "range"; keyword
// fields accept eq/in/not/not_in.
func buildFilterQuery(f Filter) (query.Query, error) {
	numeric, known := filterableFields[f.Field]
	if !known {
		return nil, doclexerr.InvalidField(f.Field)
	}

	switch f.Op {
	case OpEq:
		if numeric {
			return nil, doclexerr.InvalidArgument(fmt.Sprintf("filter op %q not valid for numeric field %q; use range", f.Op, f.Field))
		}
		return termQuery(f.Field, f.Value), nil

	case OpIn:
		if numeric {
			return nil, doclexerr.InvalidArgument(fmt.Sprintf("filter op %q not valid for numeric field %q; use range", f.Op, f.Field))
		}
		if len(f.Values) == 0 {
			return nil, doclexerr.InvalidArgument("filter op \"in\" requires at least one value")
		}
		disjuncts := make([]query.Query, 0, len(f.Values))
		for _, v := range f.Values {
			disjuncts = append(disjuncts, termQuery(f.Field, v))
		}
		dq := query.NewDisjunctionQuery(disjuncts)
		dq.SetMin(1)
		return dq, nil

	case OpNot:
		if numeric {
			return nil, doclexerr.InvalidArgument(fmt.Sprintf("filter op %q not valid for numeric field %q; use range", f.Op, f.Field))
		}
		bq := query.NewBooleanQuery(nil, nil, []query.Query{termQuery(f.Field, f.Value)})
		bq.AddMust(query.NewMatchAllQuery())
		return bq, nil

	case OpNotIn:
		if numeric {
			return nil, doclexerr.InvalidArgument(fmt.Sprintf("filter op %q not valid for numeric field %q; use range", f.Op, f.Field))
		}
		disjuncts := make([]query.Query, 0, len(f.Values))
		for _, v := range f.Values {
			disjuncts = append(disjuncts, termQuery(f.Field, v))
		}
		bq := query.NewBooleanQuery(nil, nil, disjuncts)
		bq.AddMust(query.NewMatchAllQuery())
		return bq, nil

	case OpRange:
		return rangeQuery(f)

	default:
		return nil, doclexerr.InvalidArgument("unknown filter op: " + string(f.Op))
	}
}

func termQuery(field, value string) query.Query {
	tq := query.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

// isDateField reports whether field holds epoch-millisecond date
// values (vs. file_size, a plain integer).
func isDateField(field string) bool {
	switch field {
	case "created_date", "modified_date", "indexed_date":
		return true
	default:
		return false
	}
}

// rangeQuery builds a numeric range query from a Filter's From/To
// bounds. Bounds are inclusive on both ends; an empty bound
// leaves that side open.
func rangeQuery(f Filter) (query.Query, error) {
	var minPtr, maxPtr *float64
	if strings.TrimSpace(f.From) != "" {
		v, err := rangeValue(f.Field, f.From, false)
		if err != nil {
			return nil, err
		}
		minPtr = &v
	}
	if strings.TrimSpace(f.To) != "" {
		v, err := rangeValue(f.Field, f.To, true)
		if err != nil {
			return nil, err
		}
		maxPtr = &v
	}
	if minPtr == nil && maxPtr == nil {
		return nil, doclexerr.InvalidRange("range filter on " + f.Field + " requires at least one of from/to")
	}

	minIncl := true
	maxIncl := true
	nq := query.NewNumericRangeInclusiveQuery(minPtr, maxPtr, &minIncl, &maxIncl)
	nq.SetField(f.Field)
	return nq, nil
}

// rangeValue parses a range bound: ISO-8601 for date fields (to epoch
// millis), a plain integer for file_size. A bare date (no time
// component) used as an upper bound is widened to the end of that day
// (23:59:59.999 UTC), so "to: 2024-01-31" includes all of Jan 31.
func rangeValue(field, raw string, upperBound bool) (float64, error) {
	if isDateField(field) {
		ms, bareDate, err := parseISODate(raw)
		if err != nil {
			return 0, doclexerr.InvalidRange(fmt.Sprintf("invalid date %q for field %q: %v", raw, field, err))
		}
		if bareDate && upperBound {
			ms += 24*time.Hour.Milliseconds() - 1
		}
		return float64(ms), nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, doclexerr.InvalidRange(fmt.Sprintf("invalid numeric value %q for field %q: %v", raw, field, err))
	}
	return float64(n), nil
}

// isoDateLayouts are tried in order; a bare date is treated as the
// start of that day in UTC (inclusive lower bound) or, for an upper
// bound supplied as a bare date, the caller is responsible for adding a
// day if end-of-day inclusivity is desired.
var isoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseISODate parses raw against isoDateLayouts and reports whether it
// was a bare date (no time-of-day component).
func parseISODate(raw string) (millis int64, bareDate bool, err error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for i, layout := range isoDateLayouts {
		t, perr := time.Parse(layout, raw)
		if perr == nil {
			return t.UnixMilli(), i == len(isoDateLayouts)-1, nil
		}
		lastErr = perr
	}
	return 0, false, lastErr
}
