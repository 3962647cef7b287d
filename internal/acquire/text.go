// Package acquire turns each supported source (pasted text, uploaded PDF,
// product page URL) into plain text ready for extraction.
package acquire

import (
	"strings"
	"unicode/utf8"

	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/validation"
)

// TruncationMarker is appended whenever acquired text is cut short.
const TruncationMarker = "[Content truncated]"

// TextAcquirer passes validated text through unchanged.
type TextAcquirer struct{}

// Acquire validates raw and returns it with its provenance.
func (TextAcquirer) Acquire(raw string) (string, models.SourceInfo, error) {
	text, err := validation.ValidateText(raw)
	if err != nil {
		return "", models.SourceInfo{}, err
	}
	return text, models.TextSource(utf8.RuneCountInString(text)), nil
}

// normalizeWhitespace collapses runs of blanks inside each line, trims lines
// and drops empty ones.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// truncate cuts s to at most limit characters and appends the marker.
func truncate(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "\n\n" + TruncationMarker, true
}
