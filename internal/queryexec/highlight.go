package queryexec

import (
	"sort"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/doclex/doclex/internal/docfields"
)

// buildPassages produces up to req.MaxPassages highlighted excerpts from
// dm's content field term-vector locations. A
// document that only matched through a stemmed shadow field carries no
// content-field locations; in that case a single unscored fallback
// passage is returned instead of an empty list.
func (e *Executor) buildPassages(dm *search.DocumentMatch, req Request, queryTerms []string) []Passage {
	content, _ := dm.Fields[docfields.FieldContent].(string)

	locs, ok := dm.Locations[docfields.FieldContent]
	if !ok || len(locs) == 0 {
		return []Passage{fallbackPassage(content, req.MaxPassageCharLength)}
	}

	windows := windowsFromLocations(locs, req.MaxPassageCharLength)
	if len(windows) == 0 {
		return []Passage{fallbackPassage(content, req.MaxPassageCharLength)}
	}

	passages := make([]Passage, 0, len(windows))
	for _, w := range windows {
		passages = append(passages, w.toPassage(content, req.MaxPassageCharLength, len(queryTerms)))
	}

	sort.Slice(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > req.MaxPassages {
		passages = passages[:req.MaxPassages]
	}
	return passages
}

// hit is one matched term occurrence within the content field, flattened
// out of bleve's per-term location map.
type hit struct {
	term  string
	start int
	end   int
}

// window is a candidate passage: a contiguous byte range and every term
// hit that falls inside it.
type window struct {
	start, end int
	hits       []hit
}

// windowsFromLocations clusters term hits that fall within maxChars of
// each other into a single window, so a cluster of nearby matches yields
// one passage instead of one per term occurrence.
func windowsFromLocations(locs search.TermLocationMap, maxChars int) []window {
	var hits []hit
	for term, tlocs := range locs {
		for _, l := range tlocs {
			hits = append(hits, hit{term: term, start: int(l.Start), end: int(l.End)})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var windows []window
	cur := window{start: hits[0].start, end: hits[0].end, hits: []hit{hits[0]}}
	for _, h := range hits[1:] {
		if h.start-cur.start <= maxChars {
			cur.hits = append(cur.hits, h)
			if h.end > cur.end {
				cur.end = h.end
			}
			continue
		}
		windows = append(windows, cur)
		cur = window{start: h.start, end: h.end, hits: []hit{h}}
	}
	windows = append(windows, cur)
	return windows
}

// toPassage expands w to a maxChars-wide slice of content centered on its
// match cluster, scores it by distinct-term coverage, and marks emphasis
// spans for each matched term occurrence that survives the clip.
func (w window) toPassage(content string, maxChars int, queryTermCount int) Passage {
	center := (w.start + w.end) / 2
	lo := center - maxChars/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + maxChars
	if hi > len(content) {
		hi = len(content)
		if hi-maxChars > 0 {
			lo = hi - maxChars
		}
	}

	matched := map[string]bool{}
	var spans []Span
	for _, h := range w.hits {
		if h.start < lo || h.end > hi {
			continue
		}
		matched[h.term] = true
		spans = append(spans, Span{Start: h.start - lo, End: h.end - lo})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	terms := make([]string, 0, len(matched))
	for t := range matched {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	coverage := 0.0
	if queryTermCount > 0 {
		coverage = float64(len(matched)) / float64(queryTermCount)
	}

	return Passage{
		Text:         content[lo:hi],
		Offset:       lo,
		Score:        coverage*100 + float64(len(spans)),
		MatchedTerms: terms,
		TermCoverage: coverage,
		Emphasis:     spans,
	}
}

// fallbackPassage returns an unscored excerpt from the start of content,
// used when a document matched only through a stemmed shadow field and
// carries no content-field term locations to highlight.
func fallbackPassage(content string, maxChars int) Passage {
	if maxChars <= 0 {
		maxChars = defaultMaxPassageCharLength
	}
	end := maxChars
	if end > len(content) {
		end = len(content)
	}
	return Passage{
		Text:       content[:end],
		Offset:     0,
		IsFallback: true,
	}
}
