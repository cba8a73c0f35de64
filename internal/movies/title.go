package movies

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FormatTitle normalizes a user supplied title: everything except ASCII
// letters becomes a separator, runs of separators collapse, and each word
// is title cased. "spider-man: no way home" becomes "Spider Man No Way Home".
func FormatTitle(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return ' '
	}, raw)
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}
	// Casers keep state between calls and must not be shared across goroutines.
	caser := cases.Title(language.English)
	for i, word := range words {
		words[i] = caser.String(word)
	}
	return strings.Join(words, " ")
}
