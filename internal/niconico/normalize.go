package niconico

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeTitle folds a scraped title into the form the search index
// expects: NFKC, full-width ASCII narrowed, half-width kana widened and
// whitespace runs collapsed to one space.
func NormalizeTitle(raw string) string {
	folded := width.Fold.String(norm.NFKC.String(raw))
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
