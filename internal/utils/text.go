package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxTitleRunes = 40

// SanitizeKey trims a credential and drops every non-ASCII character, which
// would otherwise break the Authorization header.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	return strings.Map(func(r rune) rune {
		if r > 0x7F {
			return -1
		}
		return r
	}, key)
}

// TruncateTitle caps a generated title at 40 characters plus "...".
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return string([]rune(title)[:maxTitleRunes]) + "..."
}

var listMarkerRe = regexp.MustCompile(`^[\d\-.*•]+\s*`)

// SuggestionLines splits model output into at most limit suggestion lines,
// dropping list markers and blank lines.
func SuggestionLines(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}
