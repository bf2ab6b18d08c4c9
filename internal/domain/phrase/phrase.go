// Package phrase parses free-text model output into bounded keyword phrases.
// Model responses are never trusted: list markers and quoting are stripped and
// anything outside the word-count and length bounds is dropped, not corrected.
package phrase

import (
	"strings"
	"unicode"
)

// Bounds for an acceptable keyword phrase.
const (
	MinWords  = 2
	MaxWords  = 4
	MaxLength = 50
)

// Parse splits raw generated text into phrases, one per line, stripping list
// markers (bullets, numbering) and surrounding quotes. Phrases outside the
// word-count or length bounds are dropped.
func Parse(raw string) []string {
	var phrases []string
	for _, line := range strings.Split(raw, "\n") {
		p := Clean(line)
		if p == "" {
			continue
		}
		if !WithinBounds(p) {
			continue
		}
		phrases = append(phrases, p)
	}
	return phrases
}

// Clean strips list markers, numbering, and quotes from a single line.
func Clean(line string) string {
	s := strings.TrimSpace(line)

	// Leading bullets: -, *, •
	s = strings.TrimLeft(s, "-*• \t")

	// Leading numbering: "1." / "12)" / "3:"
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')' || s[i] == ':') {
		s = s[i+1:]
	}

	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}

// WithinBounds reports whether a cleaned phrase satisfies the word-count and
// length policy.
func WithinBounds(p string) bool {
	if len(p) > MaxLength {
		return false
	}
	words := len(strings.Fields(p))
	return words >= MinWords && words <= MaxWords
}
