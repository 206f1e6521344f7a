package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs for the read-only documentation the AI client fetches on
// demand.
const (
	QuerySyntaxURI    = "lucene://docs/query-syntax"
	ProfilingGuideURI = "lucene://docs/profiling-guide"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "query-syntax",
		URI:         QuerySyntaxURI,
		Description: "Query syntax reference: fields, phrases, boolean operators, wildcards, ranges.",
		MIMEType:    "text/markdown",
	}, s.makeDocHandler(QuerySyntaxURI, querySyntaxDoc))

	s.mcp.AddResource(&mcp.Resource{
		Name:        "profiling-guide",
		URI:         ProfilingGuideURI,
		Description: "How to read profileQuery output and tune queries with it.",
		MIMEType:    "text/markdown",
	}, s.makeDocHandler(ProfilingGuideURI, profilingGuideDoc))

	s.logger.Debug("MCP resources registered", slog.Int("count", 2))
}

func (s *Server) makeDocHandler(uri, content string) mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "text/markdown", Text: content},
			},
		}, nil
	}
}

const querySyntaxDoc = `# Query syntax

A query is one or more clauses joined by whitespace (implicit AND) or
the operators AND, OR, NOT. Parentheses group.

## Terms

- ` + "`vertrag`" + ` — single term, matched against the content field and its
  per-language stemmed shadow fields.
- ` + "`title:report`" + ` — the field prefix is accepted, but the value is
  matched like a plain term against the content field and its stemmed shadow
  fields; the named field itself is not searched.
- ` + "`vertrag*`" + ` — prefix. Prefixes of 4+ characters are expanded over the
  term dictionary and scored; shorter prefixes match with constant score.
- ` + "`*vertrag`" + ` — leading wildcard, served efficiently via a reversed
  shadow field. Useful for compound-word suffixes (German: Arbeitsvertrag,
  Mietvertrag).
- ` + "`ver?rag`" + ` — single-character wildcard.

## Phrases

- ` + "`\"budget report\"`" + ` — exact phrase. Multi-term exact phrases are
  automatically expanded to also match with slop 3 at reduced weight, so
  near-misses still surface below exact matches.
- ` + "`\"budget report\"~5`" + ` — explicit slop; no automatic expansion.

## Boolean

- ` + "`vertrag AND kuendigung`" + `, ` + "`vertrag OR contract`" + `, ` + "`vertrag NOT entwurf`" + `
- Operators are case-insensitive. Adjacent clauses without an operator
  are ANDed.

## Normalization

All analyzed-field terms are case-, diacritic-, and width-folded:
` + "`Muller`" + ` finds ` + "`Müller`" + `. Keyword fields (file_path, file_name,
file_extension, file_type, language, content_hash) match exactly.

## Filters, not query syntax

Structured constraints (dates, sizes, extensions, language) belong in
the ` + "`filters`" + ` parameter of the search tool, not in the query string;
ranges accept ISO-8601 dates and are inclusive on both bounds.
`

const profilingGuideDoc = `# Profiling guide

` + "`profileQuery`" + ` analyzes a query without fetching hits.

## Level 1 (always on)

- **queryStructure** — the compiled query after all rewrites, in
  field:value notation. Check it to confirm a leading wildcard was
  rewritten against content_reversed, a prefix was expanded, or a phrase
  was slop-expanded.
- **terms** — each query term's document frequency and a rarity label:
  rare (<1% of documents), common (1–20%), very_common (>20%).
  Very-common terms dominate cost but rarely help ranking; consider
  dropping them or anchoring them in a phrase.
- **estimatedCost** — the summed document frequency, a proxy for how
  many postings the query will touch.

## Level 2: filterImpact

Set ` + "`filterImpact: true`" + ` to replay the query with filters added one
at a time, in request order. Each entry reports hits remaining and hits
removed, showing which filter actually narrows the result set. Put the
most selective filter first when latency matters.

## Level 3: explainDocs

Set ` + "`explainDocs: N`" + ` (max 10) to fetch scoring explanations for the
top N hits, reduced to per-clause contribution percentages. Use this to
see whether a hit ranked via the exact content field or a stemmed
shadow field.

## facetCost

Set ` + "`facetCost: true`" + ` with a ` + "`facets`" + ` list to time each facet's
side computation and report its value cardinality.
`
