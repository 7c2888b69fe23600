package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/padraicbc/mikebet/models"
)

// RosterEntry is one reconciled runner with its names resolved.
type RosterEntry struct {
	EntryID       int64               `bun:"entry_id" json:"entryID"`
	ProgramNumber string              `bun:"program_number" json:"programNumber"`
	Pgm           string              `bun:"pgm" json:"pgm"`
	Horse         string              `bun:"horse" json:"horse"`
	Jockey        *string             `bun:"jockey" json:"jockey,omitempty"`
	Trainer       *string             `bun:"trainer" json:"trainer,omitempty"`
	Finish        *int                `bun:"finish" json:"finish,omitempty"`
	Scratched     bool                `bun:"scratched" json:"scratched"`
	WinPayout     decimal.NullDecimal `bun:"win_payout" json:"winPayout"`
	PlacePayout   decimal.NullDecimal `bun:"place_payout" json:"placePayout"`
	ShowPayout    decimal.NullDecimal `bun:"show_payout" json:"showPayout"`
	Odds          *string             `bun:"odds" json:"odds,omitempty"`
	Comment       *string             `bun:"comment" json:"comment,omitempty"`
}

// Roster is a race with its reconciled field.
type Roster struct {
	Track   string                `json:"track"`
	Race    models.Race           `json:"race"`
	Entries []RosterEntry         `json:"entries"`
	Exotics []models.ExoticPayout `json:"exotics"`
	Changes []models.Change       `json:"changes"`
}

const rosterSQL = `
SELECT
	e.entry_id, e.program_number, e.pgm, h.name AS horse,
	j.name AS jockey, t.name AS trainer,
	e.finish, e.scratched, e.win_payout, e.place_payout, e.show_payout,
	e.odds, e.comment
FROM entries e
INNER JOIN horses   h ON e.horse_id   = h.horse_id
LEFT JOIN  jockeys  j ON e.jockey_id  = j.jockey_id
LEFT JOIN  trainers t ON e.trainer_id = t.trainer_id
WHERE e.race_id = ?
ORDER BY e.finish NULLS LAST, e.pgm
`

// Roster returns the reconciled roster for a race identified by track key,
// date and number, or nil when the race is unknown.
func (c *Catalog) Roster(ctx context.Context, trackKey, date string, number int) (*Roster, error) {
	return loadRoster(ctx, c.db, trackKey, date, number)
}

// RacesOn lists the races of one day with their tracks.
func (c *Catalog) RacesOn(ctx context.Context, date string) ([]models.Race, error) {
	var races []models.Race
	err := c.db.NewSelect().Model(&races).
		Relation("Track").
		Where("rc.date = ?", date).
		Order("rc.track_id", "rc.number").
		Scan(ctx)
	return races, err
}

func loadRoster(ctx context.Context, db bun.IDB, trackKey, date string, number int) (*Roster, error) {
	var track models.Track
	err := db.NewSelect().Model(&track).Where("name_key = ?", trackKey).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := &Roster{Track: track.Name, Entries: []RosterEntry{}}
	err = db.NewSelect().Model(&r.Race).
		Where("rc.track_id = ?", track.TrackID).
		Where("rc.date = ?", date).
		Where("rc.number = ?", number).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := db.NewRaw(rosterSQL, r.Race.RaceID).Scan(ctx, &r.Entries); err != nil {
		return nil, err
	}
	if err := db.NewSelect().Model(&r.Exotics).Where("race_id = ?", r.Race.RaceID).Order("id").Scan(ctx); err != nil {
		return nil, err
	}
	if err := db.NewSelect().Model(&r.Changes).Where("race_id = ?", r.Race.RaceID).Order("change_id").Scan(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
