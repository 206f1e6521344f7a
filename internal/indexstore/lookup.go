package indexstore

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/doclex/doclex/internal/docfields"
)

// LookupFields returns the stored file_size/modified_date/content_hash
// for the document at path, used by the reconciler to decide ADD vs.
// UPDATE vs. SKIP without re-running a full query.
func (s *Store) LookupFields(path string) (map[string]interface{}, bool, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	tq := query.NewTermQuery(path)
	tq.SetField(docfields.FieldFilePath)
	sreq := bleve.NewSearchRequestOptions(tq, 1, 0, false)
	sreq.Fields = []string{docfields.FieldFileSize, docfields.FieldModifiedDate, docfields.FieldContentHash}

	result, err := idx.Search(sreq)
	if err != nil {
		return nil, false, err
	}
	if len(result.Hits) == 0 {
		return nil, false, nil
	}
	return result.Hits[0].Fields, true, nil
}

// Exists reports whether any document is indexed for path, without
// fetching stored fields.
func (s *Store) Exists(path string) (bool, error) {
	_, ok, err := s.LookupFields(path)
	return ok, err
}

// AllPaths invokes fn for every indexed file_path, used by the reconciler
// to find DELETE candidates (documents with no corresponding file on
// disk). It walks the term dictionary rather than paging through search
// results, since file_path is a single-token keyword field.
func (s *Store) AllPaths(fn func(path string) error) error {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	idxImpl, _ := idx.Advanced()
	reader, err := idxImpl.Reader()
	if err != nil {
		return err
	}
	defer reader.Close()

	dict, err := reader.FieldDict(docfields.FieldFilePath)
	if err != nil {
		return err
	}
	defer dict.Close()

	for {
		entry, err := dict.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if err := fn(entry.Term); err != nil {
			return err
		}
	}
}
