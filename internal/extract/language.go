package extract

import "strings"

// SupportedLanguages are the languages doclex stems.
var SupportedLanguages = []string{"de", "en"}

// germanMarkers and englishMarkers are small, high-frequency function-word
// sets. DetectLanguage is intentionally simple: it only needs to be good
// enough to route content into the right stemmed shadow field, not to make
// semantic judgments about the document.
var germanMarkers = map[string]struct{}{
	"der": {}, "die": {}, "das": {}, "und": {}, "ist": {}, "ein": {}, "eine": {},
	"nicht": {}, "mit": {}, "für": {}, "auf": {}, "wurde": {}, "wurden": {},
	"fehlt": {}, "den": {}, "des": {},
}

var englishMarkers = map[string]struct{}{
	"the": {}, "and": {}, "is": {}, "a": {}, "an": {}, "of": {}, "to": {},
	"in": {}, "for": {}, "with": {}, "was": {}, "were": {}, "are": {},
}

// DetectLanguage returns "de", "en", or "" (unknown) based on function-word
// frequency. A document with no detected language is still searchable via
// content only; it just gets no stemmed shadow field.
func DetectLanguage(content string) string {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || r == 'ä' || r == 'ö' || r == 'ü' || r == 'ß')
	})
	if len(words) == 0 {
		return ""
	}

	var deHits, enHits int
	for _, w := range words {
		if _, ok := germanMarkers[w]; ok {
			deHits++
		}
		if _, ok := englishMarkers[w]; ok {
			enHits++
		}
	}

	switch {
	case deHits == 0 && enHits == 0:
		return ""
	case deHits > enHits:
		return "de"
	case enHits > deHits:
		return "en"
	default:
		return "en"
	}
}

// IsSupportedLanguage reports whether lang has a registered stemmed
// shadow field.
func IsSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
