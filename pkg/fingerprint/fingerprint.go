// Package fingerprint canonicalizes fact text into a key used for cheap
// duplicate detection.
package fingerprint

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
)

// Normalize returns the dedup key of text: case-folded, transliterated to
// ASCII, every run of non-alphanumeric characters replaced by a single space,
// trimmed. Texts with the same key are treated as the same fact.
//
// Transliteration is an approximation. Scripts without a Latin romanization
// may collapse poorly or to nothing.
func Normalize(text string) string {
	folded := cases.Fold().String(text)
	ascii := strings.ToLower(unidecode.Unidecode(folded))

	var b strings.Builder
	b.Grow(len(ascii))
	pendingSpace := false
	for i := 0; i < len(ascii); i++ {
		c := ascii[i]
		if isAlnum(c) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteByte(c)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('0' <= c && c <= '9')
}
