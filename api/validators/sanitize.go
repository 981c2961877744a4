package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeText trims the input, drops control characters and invalid UTF-8,
// and caps the result at maxRunes characters. validator's max tag counts runes,
// so the cut matches what validation already accepted.
func SanitizeText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, strings.ToValidUTF8(input, ""))
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	cut := 0
	for i := range cleaned {
		if maxRunes == 0 {
			cut = i
			break
		}
		maxRunes--
	}
	return strings.TrimSpace(cleaned[:cut])
}
