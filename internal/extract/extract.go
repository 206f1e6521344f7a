// Package extract defines the one runtime-pluggable boundary in doclex: a
// capability that turns a file path into text, metadata, and a detected
// language. The core indexing pipeline depends only on the Extractor
// interface; concrete extractors are dispatched by file type.
package extract

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Extracted is what the indexing pipeline (internal/docfields) consumes.
type Extracted struct {
	Content  string
	Metadata map[string]string
	Language string
	FileType string
	FileSize int64
}

// Extractor turns a file on disk into Extracted content + metadata.
type Extractor interface {
	Extract(path string) (*Extracted, error)
}

// Default is the built-in extractor: plain text, Markdown, and HTML. It
// dispatches on MIME type to pick an extraction strategy.
type Default struct {
	MaxContentLength int
	DetectLanguage   bool
}

// NewDefault returns an extractor with the given content-length cap and
// language-detection toggle.
func NewDefault(maxContentLength int, detectLanguage bool) *Default {
	if maxContentLength <= 0 {
		maxContentLength = 50 * 1024 * 1024
	}
	return &Default{MaxContentLength: maxContentLength, DetectLanguage: detectLanguage}
}

func (d *Default) Extract(path string) (*Extracted, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) > d.MaxContentLength {
		raw = raw[:d.MaxContentLength]
	}
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, []byte{})
	}

	fileType := MimeTypeForPath(path)
	content := string(raw)
	meta := map[string]string{}

	switch fileType {
	case "text/html":
		content, meta = extractHTML(content)
	case "text/markdown":
		meta["title"] = firstMarkdownHeading(content)
	}

	ext := Extracted{
		Content:  content,
		Metadata: meta,
		FileType: fileType,
		FileSize: info.Size(),
	}
	if d.DetectLanguage {
		ext.Language = DetectLanguage(content)
	}
	return &ext, nil
}

var titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
var tagRe = regexp.MustCompile(`(?is)<[^>]+>`)
var scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)

// extractHTML strips markup for the content field and pulls <title> as
// metadata, the way a Tika-style extractor would for this one format.
func extractHTML(raw string) (string, map[string]string) {
	meta := map[string]string{}
	if m := titleTagRe.FindStringSubmatch(raw); len(m) == 2 {
		meta["title"] = html.UnescapeString(strings.TrimSpace(m[1]))
	}
	stripped := scriptStyleRe.ReplaceAllString(raw, " ")
	stripped = tagRe.ReplaceAllString(stripped, " ")
	stripped = html.UnescapeString(stripped)
	return collapseWhitespace(stripped), meta
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

func firstMarkdownHeading(content string) string {
	if m := headingRe.FindStringSubmatch(content); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// MimeTypeForPath returns the MIME type doclex uses to select an
// extraction strategy and populate file_type, based on extension.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown", ".mdx":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case "":
		return "text/plain"
	default:
		return "text/plain"
	}
}
