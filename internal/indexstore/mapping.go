package indexstore

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/extract"
	"github.com/doclex/doclex/internal/textanalysis"
)

// BuildIndexMapping constructs the bleve mapping for the document field
// set: one document type, every field explicitly mapped (Dynamic = false
// to avoid schema drift), doc-values on every field the query executor
// sorts, ranges, or facets on.
func BuildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := textanalysis.Configure(im); err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	doc.AddFieldMappingsAt(docfields.FieldFilePath, keywordField(true, true, false))
	doc.AddFieldMappingsAt(docfields.FieldFileName, keywordField(true, true, false))
	doc.AddFieldMappingsAt(docfields.FieldFileExtension, keywordField(true, true, true))
	doc.AddFieldMappingsAt(docfields.FieldFileType, keywordField(true, true, true))
	doc.AddFieldMappingsAt(docfields.FieldFileSize, numericField(true, true))
	doc.AddFieldMappingsAt(docfields.FieldCreatedDate, numericField(true, true))
	doc.AddFieldMappingsAt(docfields.FieldModifiedDate, numericField(true, true))
	doc.AddFieldMappingsAt(docfields.FieldIndexedDate, numericField(true, true))
	doc.AddFieldMappingsAt(docfields.FieldLanguage, keywordField(true, true, true))
	doc.AddFieldMappingsAt(docfields.FieldContentHash, keywordField(true, true, false))

	doc.AddFieldMappingsAt(docfields.FieldContent, textField(textanalysis.DefaultAnalyzerName, true, true, false))
	doc.AddFieldMappingsAt(docfields.FieldContentReversed, textField(textanalysis.ReversedAnalyzerName, false, false, false))

	for _, lang := range extract.SupportedLanguages {
		doc.AddFieldMappingsAt(docfields.StemmedFieldName(lang), textField(textanalysis.StemmedAnalyzerName(lang), false, false, false))
	}

	doc.AddFieldMappingsAt(docfields.FieldTitle, textField(textanalysis.DefaultAnalyzerName, true, false, false))
	doc.AddFieldMappingsAt(docfields.FieldAuthor, textField(textanalysis.DefaultAnalyzerName, true, false, true))
	doc.AddFieldMappingsAt(docfields.FieldCreator, textField(textanalysis.DefaultAnalyzerName, true, false, false))
	doc.AddFieldMappingsAt(docfields.FieldSubject, textField(textanalysis.DefaultAnalyzerName, true, false, false))
	doc.AddFieldMappingsAt(docfields.FieldKeywords, textField(textanalysis.DefaultAnalyzerName, true, false, false))

	im.DefaultMapping = doc
	return im, nil
}

func keywordField(store, index, docValues bool) *mapping.FieldMapping {
	f := mapping.NewTextFieldMapping()
	f.Analyzer = "keyword"
	f.Store = store
	f.Index = index
	f.DocValues = docValues
	f.IncludeInAll = false
	return f
}

func textField(analyzer string, store, termVectors, docValues bool) *mapping.FieldMapping {
	f := mapping.NewTextFieldMapping()
	f.Analyzer = analyzer
	f.Store = store
	f.IncludeTermVectors = termVectors
	f.DocValues = docValues
	f.IncludeInAll = false
	return f
}

func numericField(store, docValues bool) *mapping.FieldMapping {
	f := mapping.NewNumericFieldMapping()
	f.Store = store
	f.DocValues = docValues
	f.IncludeInAll = false
	return f
}
