package reconcile

import (
	"context"

	"github.com/padraicbc/mikebet/models"
)

// Store runs one race's reconciliation as a unit.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the repository surface used inside a reconciliation unit. Find methods
// return nil, nil when nothing matches.
type Tx interface {
	FindTrack(ctx context.Context, key string) (*models.Track, error)
	FindOrCreateTrack(ctx context.Context, name, key string) (*models.Track, error)
	FindRace(ctx context.Context, trackID int64, date string, number int) (*models.Race, error)
	InsertRace(ctx context.Context, race *models.Race) error
	UpdateRace(ctx context.Context, race *models.Race) error

	// RaceEntries returns every entry row of the race with Horse loaded,
	// zombie rows included.
	RaceEntries(ctx context.Context, raceID int64) ([]*models.Entry, error)
	InsertEntry(ctx context.Context, e *models.Entry) error
	UpdateEntry(ctx context.Context, e *models.Entry) error
	DeleteEntry(ctx context.Context, entryID int64) error
	// RepointEntry moves changes and claims from one entry to another.
	RepointEntry(ctx context.Context, from, to int64) error

	FindHorse(ctx context.Context, key string) (*models.Horse, error)
	InsertHorse(ctx context.Context, h *models.Horse) error
	FindOrCreatePerson(ctx context.Context, kind models.PersonKind, name, key string) (int64, error)

	// InsertChange reports false when the change was already recorded.
	InsertChange(ctx context.Context, c *models.Change) (bool, error)
	UpsertClaim(ctx context.Context, c *models.Claim) error
	UpsertExotic(ctx context.Context, x *models.ExoticPayout) error
}
