package util

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most max runes, cutting on a rune boundary.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	return string(runes[:max])
}

// Preview collapses whitespace and shortens s for log lines and notifications.
func Preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return Truncate(s, max)
	}
	return strings.TrimSpace(Truncate(s, max-3)) + "..."
}
