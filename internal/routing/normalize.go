package routing

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizer canonicalises message text before it is compared against matchText.
//
// Text is converted to Unicode NFC and stripped of surrounding whitespace, so
// "atendente" typed with a combining accent matches the precomposed form.
// With FoldCase enabled the comparison also becomes case-insensitive.
type Normalizer struct {
	FoldCase bool
}

// Normalize returns the canonical form of s.
func (n Normalizer) Normalize(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if n.FoldCase {
		// Fold can produce decomposed output for some scripts.
		s = norm.NFC.String(cases.Fold().String(s))
	}
	return s
}
