// Package similarity scores how alike two paragraphs are.
package similarity

import (
	"strings"
	"unicode"
)

// Func is a symmetric similarity metric returning a value in [0,1].
type Func func(a, b string) float64

// Tokens returns the set of lower-cased word tokens in s. A token is a maximal
// run of letters or digits; everything else separates tokens.
func Tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[strings.ToLower(tok)] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b.
// Two empty texts are identical (1); exactly one empty text shares nothing (0).
// Texts without any tokens (separators such as "---") only match themselves.
// Word order and repetition are ignored.
func Jaccard(a, b string) float64 {
	return NewText(a).Jaccard(NewText(b))
}

// Text is a paragraph together with its token set, so repeated comparisons
// tokenize it once.
type Text struct {
	trimmed string
	tokens  map[string]struct{}
}

// NewText tokenizes s.
func NewText(s string) Text {
	return Text{trimmed: strings.TrimSpace(s), tokens: Tokens(s)}
}

// Jaccard compares t with o under the same rules as the package-level Jaccard.
func (t Text) Jaccard(o Text) float64 {
	if t.trimmed == "" && o.trimmed == "" {
		return 1
	}
	if t.trimmed == "" || o.trimmed == "" {
		return 0
	}
	if len(t.tokens) == 0 || len(o.tokens) == 0 {
		if len(t.tokens) == 0 && len(o.tokens) == 0 && t.trimmed == o.trimmed {
			return 1
		}
		return 0
	}

	small, large := t.tokens, o.tokens
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(t.tokens) + len(o.tokens) - inter
	return float64(inter) / float64(union)
}
