package chat

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// memoryQuery matches "what do you remember (about me)" in English and Hebrew
var memoryQuery = regexp.MustCompile(`(?i)(?:מה\s+את[ה]?\s+זוכר|what\s+do\s+you\s+remember|what\s+do\s+you\s+know\s+about\s+me)`)

func isMemoryQuery(text string) bool {
	return memoryQuery.MatchString(text)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// isStopPhrase reports whether text contains one of phrases as whole words
func isStopPhrase(text string, phrases []string) bool {
	w := words(text)
	for _, phrase := range phrases {
		p := words(phrase)
		if len(p) == 0 || len(p) > len(w) {
			continue
		}
		for i := 0; i+len(p) <= len(w); i++ {
			if slices.Equal(w[i:i+len(p)], p) {
				return true
			}
		}
	}
	return false
}
