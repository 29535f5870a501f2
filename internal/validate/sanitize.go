package validate

import (
	"regexp"
	"strings"
)

const maxNameLength = 100

var (
	nameStripRe    = regexp.MustCompile(`[<>"'&]`)
	controlCharsRe = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
)

// SanitizeName strips markup-significant characters from a display name and
// caps its length.
func SanitizeName(name string) string {
	name = nameStripRe.ReplaceAllString(strings.TrimSpace(name), "")
	return truncateRunes(name, maxNameLength)
}

// SanitizeText removes control and null bytes from free text and truncates it
// to maxLength runes.
func SanitizeText(text string, maxLength int) string {
	if text == "" {
		return ""
	}

	text = controlCharsRe.ReplaceAllString(text, "")
	if maxLength > 0 {
		text = truncateRunes(text, maxLength)
	}

	return strings.TrimSpace(text)
}

// truncateRunes cuts on a rune boundary so multi-byte characters are never
// split into invalid UTF-8.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
