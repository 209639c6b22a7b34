package parser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	formatControls = runes.Predicate(func(r rune) bool {
		return unicode.Is(unicode.Bidi_Control, r) ||
			unicode.Is(unicode.Join_Control, r) ||
			r == '\u200b' || r == '\ufeff'
	})
	foreignScript = runes.In(unicode.Arabic)

	freeSuffixPattern = regexp.MustCompile(`(?i)\s*\(Free\)\s*$`)
)

// CleanDescription strips directional controls and Arabic script runs,
// collapses whitespace, and drops a trailing comma or "(Free)" marker.
func CleanDescription(raw string) string {
	t := transform.Chain(norm.NFKC, runes.Remove(formatControls), runes.Remove(foreignScript))
	cleaned, _, err := transform.String(t, raw)
	if err != nil {
		cleaned = raw
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.TrimRight(cleaned, ", ")
	cleaned = freeSuffixPattern.ReplaceAllString(cleaned, "")
	return strings.TrimRight(cleaned, ", ")
}

// IsForeignOnly reports whether line holds nothing but Arabic script, digits,
// dots, and whitespace.
func IsForeignOnly(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		switch {
		case unicode.Is(unicode.Arabic, r), unicode.IsDigit(r), unicode.IsSpace(r), r == '.':
		case formatControls.Contains(r):
		default:
			return false
		}
	}
	return true
}
