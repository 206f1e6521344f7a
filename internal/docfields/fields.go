// Package docfields maps an extracted document onto its indexed field
// set: it resolves metadata fallback chains, computes the content hash,
// and produces the content_reversed/content_stemmed_<lang> shadow fields
// used by the query executor.
package docfields

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/doclex/doclex/internal/extract"
)

// Field names as stored in the index.
const (
	FieldFilePath        = "file_path"
	FieldFileName        = "file_name"
	FieldFileExtension   = "file_extension"
	FieldFileType        = "file_type"
	FieldFileSize        = "file_size"
	FieldCreatedDate     = "created_date"
	FieldModifiedDate    = "modified_date"
	FieldIndexedDate     = "indexed_date"
	FieldLanguage        = "language"
	FieldContent         = "content"
	FieldContentReversed = "content_reversed"
	FieldContentHash     = "content_hash"
	FieldTitle           = "title"
	FieldAuthor          = "author"
	FieldCreator         = "creator"
	FieldSubject         = "subject"
	FieldKeywords        = "keywords"
	stemmedFieldPrefix   = "content_stemmed_"
)

// StemmedFieldName returns the shadow-field name for a language, e.g.
// "content_stemmed_de".
func StemmedFieldName(lang string) string {
	return stemmedFieldPrefix + lang
}

// IsStemmedFieldName reports whether name is a content_stemmed_<lang>
// field and returns its language.
func IsStemmedFieldName(name string) (lang string, ok bool) {
	if !strings.HasPrefix(name, stemmedFieldPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, stemmedFieldPrefix), true
}

// Fields is the per-document field set handed to the index writer. Using a
// plain map (rather than a generated struct) lets the stemmed shadow field
// name vary by detected language without a mapping switch at the writer
// boundary.
type Fields map[string]interface{}

// FileStat carries the filesystem facts the crawler/reconciler already
// gathered, so docfields never re-stats the file.
type FileStat struct {
	Path       string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// metadataFallbacks lists, per field, the extractor metadata keys tried
// in order until one is non-empty.
var metadataFallbacks = map[string][]string{
	FieldTitle:    {"dc:title", "title", "Title"},
	FieldAuthor:   {"dc:creator", "meta:author", "Author", "author"},
	FieldCreator:  {"xmp:CreatorTool", "creator", "Application-Name"},
	FieldSubject:  {"dc:subject", "subject", "Subject"},
	FieldKeywords: {"meta:keyword", "keywords", "Keywords"},
}

// Build produces the full field set for one document.
func Build(path string, stat FileStat, extracted *extract.Extracted, now time.Time) Fields {
	f := Fields{
		FieldFilePath:    path,
		FieldFileName:    filepath.Base(path),
		FieldFileSize:    stat.Size,
		FieldCreatedDate: stat.CreatedAt.UnixMilli(),
		FieldModifiedDate: stat.ModifiedAt.UnixMilli(),
		FieldIndexedDate: now.UnixMilli(),
		FieldContent:     extracted.Content,
	}

	if ext, ok := fileExtension(path); ok {
		f[FieldFileExtension] = ext
	}
	if extracted.FileType != "" {
		f[FieldFileType] = extracted.FileType
	}
	if extracted.Language != "" {
		f[FieldLanguage] = extracted.Language
	}

	// content_reversed is the same text, indexed through the reversed
	// analyzer bound to this field name, so leading-wildcard queries can
	// be rewritten into a suffix search against it.
	f[FieldContentReversed] = extracted.Content

	// content_stemmed_<L> only exists when the language is known and
	// supported; the field is entirely absent, not empty, otherwise.
	if lang := extracted.Language; lang != "" {
		for _, supported := range extract.SupportedLanguages {
			if lang == supported {
				f[StemmedFieldName(lang)] = extracted.Content
				break
			}
		}
	}

	f[FieldContentHash] = ContentHash(extracted.Content)

	for field, keys := range metadataFallbacks {
		if v := firstNonEmpty(extracted.Metadata, keys); v != "" {
			f[field] = v
		}
	}

	return f
}

// fileExtension returns the lowercased extension, with no field at all
// for extension-less files or files whose name starts with '.'.
func fileExtension(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := filepath.Ext(base)
	if ext == "" || ext == "." {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(ext, ".")), true
}

// firstNonEmpty returns the first non-empty value among keys. Empty
// values are skipped, never stored.
func firstNonEmpty(meta map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ContentHash computes the SHA-256 hex digest used for change detection
// and duplicate detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// numericFields are backed only by doc-values, not a term dictionary; a
// term-enumeration request against one of them (suggestTerms, getTopTerms)
// must be rejected rather than silently returning nothing.
var numericFields = map[string]bool{
	FieldFileSize:     true,
	FieldCreatedDate:  true,
	FieldModifiedDate: true,
	FieldIndexedDate:  true,
}

// IsTermEnumerableField reports whether field has an inverted-index term
// dictionary that can be enumerated (vs. a numeric doc-values-only field).
func IsTermEnumerableField(field string) bool {
	if numericFields[field] {
		return false
	}
	if field == "" {
		return false
	}
	return true
}

// KeywordFields are not run through an analyzer; the query parser must
// not lowercase/fold prefix or wildcard terms targeting them.
var KeywordFields = map[string]bool{
	FieldFilePath:      true,
	FieldFileName:      true,
	FieldFileExtension: true,
	FieldFileType:      true,
	FieldLanguage:      true,
	FieldContentHash:   true,
}
