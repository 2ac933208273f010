// Package strutil provides string helpers shared by the ai packages.
package strutil

import "strings"

// Truncate cuts s to at most maxLen runes. It never splits a multi-byte character.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// Preview is Truncate with an ellipsis marking the cut, for log lines.
func Preview(s string, maxLen int) string {
	t := Truncate(s, maxLen)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}

// Title collapses whitespace runs in s to single spaces and truncates the result.
func Title(s string, maxLen int) string {
	return strings.TrimSpace(Truncate(strings.Join(strings.Fields(s), " "), maxLen))
}
