package bridge

import "strings"

// asciiFold maps the Unicode punctuation the speech model likes to emit
// onto plain ASCII so phrase matching is stable.
var asciiFold = strings.NewReplacer(
	"’", "'", // right single quote
	"‘", "'", // left single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"—", "-", // em dash
	"–", "-", // en dash
	" ", " ", // non-breaking space
)

// normalizeText lowercases, folds punctuation variants and collapses
// whitespace.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToLower(asciiFold.Replace(s))), " ")
}

// PhraseMatcher detects a configured closing phrase as a substring of
// normalized assistant speech.
type PhraseMatcher struct {
	norm string
}

// NewPhraseMatcher builds a matcher for phrase. An empty phrase never
// matches.
func NewPhraseMatcher(phrase string) *PhraseMatcher {
	return &PhraseMatcher{norm: normalizeText(phrase)}
}

// Match reports whether the phrase occurs in text.
func (m *PhraseMatcher) Match(text string) bool {
	return m.norm != "" && strings.Contains(normalizeText(text), m.norm)
}
