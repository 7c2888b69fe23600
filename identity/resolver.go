// Package identity resolves normalized names and program numbers to existing
// records within a race scope.
//
// Names are tried with Exact then Containment. Program numbers only ever use
// Exact: they come from a small closed alphabet where a fuzzy hit is a wrong
// horse.
package identity

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNoMatch means the caller should take the creation path.
	ErrNoMatch = errors.New("identity: no match")
	// ErrAmbiguous means several distinct records matched fuzzily. It is
	// reported for operator review and never auto-resolved.
	ErrAmbiguous = errors.New("identity: ambiguous match")
)

// Match is a successful resolution. Indices point into the candidate slice and
// all share one key; more than one index means duplicate rows.
type Match struct {
	Indices  []int
	Strategy string
}

// Resolver runs the name and program-number strategies.
type Resolver struct {
	names []Strategy
	pgm   Strategy
	log   *zap.Logger
}

// NewResolver builds a Resolver with the containment guard set to minContain.
func NewResolver(minContain int, log *zap.Logger) *Resolver {
	if minContain <= 0 {
		minContain = DefaultMinContainLen
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		names: []Strategy{Exact{}, Containment{MinLen: minContain}},
		pgm:   Exact{},
		log:   log,
	}
}

// ResolveName finds key among candidate name keys.
func (r *Resolver) ResolveName(key string, candidates []string) (Match, error) {
	if key == "" {
		return Match{}, ErrNoMatch
	}
	for _, s := range r.names {
		hits := s.Match(key, candidates)
		if len(hits) == 0 {
			continue
		}
		if distinct := distinctKeys(hits, candidates); len(distinct) > 1 {
			r.log.Warn("ambiguous name match",
				zap.String("key", key),
				zap.String("strategy", s.Name()),
				zap.Strings("candidates", distinct),
			)
			return Match{}, fmt.Errorf("%w: %q matches %v", ErrAmbiguous, key, distinct)
		}
		return Match{Indices: hits, Strategy: s.Name()}, nil
	}
	return Match{}, ErrNoMatch
}

// ResolvePgm finds a normalized program number among candidate pgms.
func (r *Resolver) ResolvePgm(pgm string, candidates []string) (Match, error) {
	hits := r.pgm.Match(pgm, candidates)
	if len(hits) == 0 {
		return Match{}, ErrNoMatch
	}
	return Match{Indices: hits, Strategy: r.pgm.Name()}, nil
}

func distinctKeys(hits []int, candidates []string) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, i := range hits {
		k := candidates[i]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
