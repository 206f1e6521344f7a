package queryparse

import "github.com/doclex/doclex/internal/textanalysis"

// ExtractTerms returns the distinct normalized terms a query string
// contributes, ignoring operators, field prefixes, and punctuation. It is
// used by the query executor to compute a passage's term coverage ratio
// (matched-unique-terms / query-unique-terms) without re-running
// the full parser.
func ExtractTerms(queryStr string) []string {
	lex := newLexer(queryStr)
	seen := map[string]bool{}
	var out []string
	// A term is held back until the next token shows it is not a field name.
	var pending string
	hasPending := false
	for {
		tok := lex.next()
		if hasPending && tok.kind != tokColon {
			add(&out, seen, pending)
		}
		hasPending = false
		switch tok.kind {
		case tokEOF:
			return out
		case tokTerm:
			pending, hasPending = tok.text, true
		case tokPhrase:
			for _, w := range splitWords(tok.text) {
				add(&out, seen, w)
			}
		}
	}
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	for _, r := range s {
		if isSpace(r) {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func add(out *[]string, seen map[string]bool, raw string) {
	term := textanalysis.Fold(raw)
	if term == "" || term == "*" || seen[term] {
		return
	}
	seen[term] = true
	*out = append(*out, term)
}
