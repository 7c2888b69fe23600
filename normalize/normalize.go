// Package normalize reduces raw horse names and program numbers to the keys
// used for identity comparisons. All functions are pure, total and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ZeroPgm is the key for a missing or empty program number.
const ZeroPgm = "0"

// Name folds case, applies NFKC and drops everything that is not a letter or
// digit, so "Stayed in for Half" and "StayedinforHalf" share a key.
//
// Name(Name(s)) == Name(s) for every input. Folding runs twice because some
// scripts (Cherokee) swap between two case ranges on each fold, and the whole
// pass repeats while dropping separators lets NFKC compose what remains.
func Name(raw string) string {
	key := nameKey(raw)
	for i := 0; i < maxNamePasses; i++ {
		next := nameKey(key)
		if next == key {
			break
		}
		key = next
	}
	return key
}

const maxNamePasses = 4

func nameKey(raw string) string {
	folded := cases.Fold().String(norm.NFKC.String(raw))
	folded = cases.Fold().String(norm.NFKC.String(folded))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Pgm normalizes a program number. Leading zeros before another digit are
// removed ("08" -> "8", "01A" -> "1A"), the alphabetic suffix of coupled
// entries is kept upper-cased, and empty input maps to ZeroPgm.
func Pgm(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	s := b.String()
	for len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9' {
		s = s[1:]
	}
	if s == "" {
		return ZeroPgm
	}
	return s
}

// Pgms normalizes a list of program numbers, preserving order.
func Pgms(raw []string) []string {
	out := make([]string, len(raw))
	for i, p := range raw {
		out[i] = Pgm(p)
	}
	return out
}
