package feed

import (
	"context"
	"sync"
)

// Static serves one decoded batch to the cycle runner, then nothing.
type Static struct {
	mu     sync.Mutex
	races  []RaceImport
	acked  []RaceKey
	served bool
}

// NewStatic returns a source over b's accepted races.
func NewStatic(b *Batch) *Static {
	return &Static{races: b.Races}
}

func (s *Static) Pull(context.Context) ([]Staged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served {
		return nil, nil
	}
	s.served = true
	out := make([]Staged, len(s.races))
	for i, imp := range s.races {
		out[i] = Staged{Import: imp}
	}
	return out, nil
}

func (s *Static) Ack(_ context.Context, st Staged) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, st.Import.Key)
	return nil
}

// Acked lists the races acknowledged so far.
func (s *Static) Acked() []RaceKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RaceKey(nil), s.acked...)
}
