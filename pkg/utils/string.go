package utils

// Truncate shortens s to at most maxLen runes, appending "..." when cut.
// Cutting on rune boundaries keeps multi-byte tool arguments printable.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
