package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString drops control characters, trims, and caps the result at
// maxLen bytes without splitting a rune. Provider APIs reject both.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input))
	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut]
}

// NormalizeCountry upper-cases an ISO 3166 alpha-2 code.
func NormalizeCountry(input string) string {
	return strings.ToUpper(SanitizeString(input, 2))
}
