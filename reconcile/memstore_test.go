package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

// memStore is an in-memory Store. Loads hand out copies so that only explicit
// writes persist, the way a database would behave.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	tracks  map[int64]*models.Track
	races   map[int64]*models.Race
	entries map[int64]*models.Entry
	horses  map[int64]*models.Horse
	people  map[models.PersonKind]map[string]int64
	changes []models.Change
	claims  []models.Claim
	exotics []models.ExoticPayout
}

func newMemStore() *memStore {
	return &memStore{
		tracks:  map[int64]*models.Track{},
		races:   map[int64]*models.Race{},
		entries: map[int64]*models.Entry{},
		horses:  map[int64]*models.Horse{},
		people:  map[models.PersonKind]map[string]int64{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func (m *memStore) FindTrack(_ context.Context, key string) (*models.Track, error) {
	for _, t := range m.tracks {
		if t.NameKey == key {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindOrCreateTrack(ctx context.Context, name, key string) (*models.Track, error) {
	if t, _ := m.FindTrack(ctx, key); t != nil {
		return t, nil
	}
	t := &models.Track{TrackID: m.id(), Name: name, NameKey: key}
	m.tracks[t.TrackID] = t
	c := *t
	return &c, nil
}

func (m *memStore) FindRace(_ context.Context, trackID int64, date string, number int) (*models.Race, error) {
	for _, r := range m.races {
		if r.TrackID == trackID && r.Date == date && r.Number == number {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertRace(_ context.Context, race *models.Race) error {
	race.RaceID = m.id()
	c := *race
	m.races[race.RaceID] = &c
	return nil
}

func (m *memStore) UpdateRace(_ context.Context, race *models.Race) error {
	c := *race
	m.races[race.RaceID] = &c
	return nil
}

func (m *memStore) RaceEntries(_ context.Context, raceID int64) ([]*models.Entry, error) {
	var out []*models.Entry
	for _, e := range m.entries {
		if e.RaceID != raceID {
			continue
		}
		c := *e
		h := *m.horses[e.HorseID]
		c.Horse = &h
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (m *memStore) InsertEntry(_ context.Context, e *models.Entry) error {
	e.EntryID = m.id()
	c := *e
	c.Horse = nil
	m.entries[e.EntryID] = &c
	return nil
}

func (m *memStore) UpdateEntry(_ context.Context, e *models.Entry) error {
	c := *e
	c.Horse = nil
	m.entries[e.EntryID] = &c
	return nil
}

func (m *memStore) DeleteEntry(_ context.Context, entryID int64) error {
	delete(m.entries, entryID)
	return nil
}

func (m *memStore) RepointEntry(_ context.Context, from, to int64) error {
	for i := range m.changes {
		if m.changes[i].EntryID == from {
			m.changes[i].EntryID = to
		}
	}
	for i := range m.claims {
		if m.claims[i].EntryID == from {
			m.claims[i].EntryID = to
		}
	}
	return nil
}

func (m *memStore) FindHorse(_ context.Context, key string) (*models.Horse, error) {
	for _, h := range m.horses {
		if h.NameKey == key {
			c := *h
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertHorse(_ context.Context, h *models.Horse) error {
	h.HorseID = m.id()
	c := *h
	m.horses[h.HorseID] = &c
	return nil
}

func (m *memStore) FindOrCreatePerson(_ context.Context, kind models.PersonKind, _, key string) (int64, error) {
	if m.people[kind] == nil {
		m.people[kind] = map[string]int64{}
	}
	if id, ok := m.people[kind][key]; ok {
		return id, nil
	}
	id := m.id()
	m.people[kind][key] = id
	return id, nil
}

func (m *memStore) InsertChange(_ context.Context, c *models.Change) (bool, error) {
	for _, x := range m.changes {
		if x.RaceID == c.RaceID && x.EntryID == c.EntryID && x.ChangeType == c.ChangeType && x.Description == c.Description {
			return false, nil
		}
	}
	c.ChangeID = m.id()
	m.changes = append(m.changes, *c)
	return true, nil
}

func (m *memStore) UpsertClaim(_ context.Context, c *models.Claim) error {
	for i, x := range m.claims {
		if x.RaceID == c.RaceID && x.EntryID == c.EntryID {
			c.ClaimID = x.ClaimID
			m.claims[i] = *c
			return nil
		}
	}
	c.ClaimID = m.id()
	m.claims = append(m.claims, *c)
	return nil
}

func (m *memStore) UpsertExotic(_ context.Context, x *models.ExoticPayout) error {
	for i, y := range m.exotics {
		if y.RaceID == x.RaceID && y.WagerType == x.WagerType && y.Numbers == x.Numbers {
			x.ID = y.ID
			m.exotics[i] = *x
			return nil
		}
	}
	x.ID = m.id()
	m.exotics = append(m.exotics, *x)
	return nil
}

// seedRace inserts a race directly, bypassing reconciliation.
func (m *memStore) seedRace(key RaceKey) *models.Race {
	t, _ := m.FindOrCreateTrack(context.Background(), key.Track, normalize.Name(key.Track))
	r := &models.Race{TrackID: t.TrackID, Date: key.Date, Number: key.Number, Status: models.RaceUpcoming}
	_ = m.InsertRace(context.Background(), r)
	return r
}

// seedEntry inserts a raw entry row the way an old, non-normalizing import did.
func (m *memStore) seedEntry(raceID int64, horse, rawPgm string, created time.Time, mut func(e *models.Entry)) *models.Entry {
	h, _ := m.FindHorse(context.Background(), normalize.Name(horse))
	if h == nil {
		h = &models.Horse{Name: horse, NameKey: normalize.Name(horse)}
		_ = m.InsertHorse(context.Background(), h)
	}
	e := &models.Entry{RaceID: raceID, HorseID: h.HorseID, ProgramNumber: rawPgm, Pgm: rawPgm, CreatedAt: created}
	if mut != nil {
		mut(e)
	}
	_ = m.InsertEntry(context.Background(), e)
	return e
}

func (m *memStore) raceEntries(raceID int64) []*models.Entry {
	out, _ := m.RaceEntries(context.Background(), raceID)
	return out
}

func (m *memStore) onlyRace() *models.Race {
	for _, r := range m.races {
		c := *r
		return &c
	}
	return nil
}
