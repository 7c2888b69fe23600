package identity

import (
	"strings"
	"unicode/utf8"
)

// Strategy selects candidate keys that identify the same entity as key.
// Both key and candidates are already normalized.
type Strategy interface {
	Name() string
	Match(key string, candidates []string) []int
}

// Exact matches candidates whose key equals key.
type Exact struct{}

func (Exact) Name() string { return "exact" }

func (Exact) Match(key string, candidates []string) []int {
	var hits []int
	for i, c := range candidates {
		if c == key {
			hits = append(hits, i)
		}
	}
	return hits
}

// DefaultMinContainLen is the default Containment guard. Keys of this length
// or shorter never take part in a containment match.
const DefaultMinContainLen = 5

// Containment matches when one key is a substring of the other. Short keys
// produce false merges ("star" inside "northernstar"), so both sides must be
// longer than MinLen runes.
type Containment struct {
	MinLen int
}

func (Containment) Name() string { return "containment" }

func (c Containment) Match(key string, candidates []string) []int {
	if utf8.RuneCountInString(key) <= c.MinLen {
		return nil
	}
	var hits []int
	for i, cand := range candidates {
		if cand == "" || utf8.RuneCountInString(cand) <= c.MinLen {
			continue
		}
		if strings.Contains(cand, key) || strings.Contains(key, cand) {
			hits = append(hits, i)
		}
	}
	return hits
}
