package indexstore

import (
	index "github.com/blevesearch/bleve_index_api"

	"github.com/doclex/doclex/internal/queryparse"
)

// TermsWithPrefix enumerates field's term dictionary starting from the
// first term >= prefix and returns up to limit entries in dictionary
// (lexicographic) order, stopping once a term no longer starts with
// prefix. It implements queryparse.TermLister for the adaptive-prefix
// rewrite and backs suggestTerms.
func (s *Store) TermsWithPrefix(field, prefix string, limit int) ([]queryparse.TermFreq, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	idxImpl, _ := idx.Advanced()
	reader, err := idxImpl.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	dict, err := reader.FieldDictPrefix(field, []byte(prefix))
	if err != nil {
		return nil, err
	}
	defer dict.Close()

	return collectDict(dict, prefix, limit)
}

// AllTerms enumerates field's entire term dictionary and returns up to
// limit entries. Backs getTopTerms; callers needing the full
// set for frequency ranking should pass a generous limit.
func (s *Store) AllTerms(field string, limit int) ([]queryparse.TermFreq, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	idxImpl, _ := idx.Advanced()
	reader, err := idxImpl.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	dict, err := reader.FieldDict(field)
	if err != nil {
		return nil, err
	}
	defer dict.Close()

	return collectDict(dict, "", limit)
}

func collectDict(dict index.FieldDict, prefix string, limit int) ([]queryparse.TermFreq, error) {
	var out []queryparse.TermFreq
	for limit <= 0 || len(out) < limit {
		entry, err := dict.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if prefix != "" && !hasPrefix(entry.Term, prefix) {
			break
		}
		out = append(out, queryparse.TermFreq{Term: entry.Term, Freq: int(entry.Count)})
	}
	return out, nil
}

func hasPrefix(term, prefix string) bool {
	if len(term) < len(prefix) {
		return false
	}
	return term[:len(prefix)] == prefix
}
