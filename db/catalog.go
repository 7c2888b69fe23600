package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/reconcile"
)

// Catalog persists tracks, races, entries and their satellites for the reconciler.
type Catalog struct {
	db *bun.DB
}

// NewCatalog returns a Catalog over db.
func NewCatalog(db *bun.DB) *Catalog {
	return &Catalog{db: db}
}

// RunInTx runs fn with a catalog transaction.
func (c *Catalog) RunInTx(ctx context.Context, fn func(ctx context.Context, tx reconcile.Tx) error) error {
	return RunInTx(ctx, c.db, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, catalogTx{tx: tx})
	})
}

type catalogTx struct {
	tx bun.Tx
}

// one scans a single row into dst, turning sql.ErrNoRows into found=false.
func one(ctx context.Context, q *bun.SelectQuery) (bool, error) {
	err := q.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t catalogTx) FindTrack(ctx context.Context, key string) (*models.Track, error) {
	track := new(models.Track)
	ok, err := one(ctx, t.tx.NewSelect().Model(track).Where("name_key = ?", key))
	if !ok {
		return nil, err
	}
	return track, nil
}

func (t catalogTx) FindOrCreateTrack(ctx context.Context, name, key string) (*models.Track, error) {
	track := &models.Track{Name: name, NameKey: key}
	_, err := t.tx.NewInsert().Model(track).
		On("CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return track, nil
}

func (t catalogTx) FindRace(ctx context.Context, trackID int64, date string, number int) (*models.Race, error) {
	race := new(models.Race)
	ok, err := one(ctx, t.tx.NewSelect().Model(race).
		Where("rc.track_id = ?", trackID).
		Where("rc.date = ?", date).
		Where("rc.number = ?", number).
		For("UPDATE"))
	if !ok {
		return nil, err
	}
	return race, nil
}

func (t catalogTx) InsertRace(ctx context.Context, race *models.Race) error {
	_, err := t.tx.NewInsert().Model(race).Returning("*").Exec(ctx)
	return err
}

func (t catalogTx) UpdateRace(ctx context.Context, race *models.Race) error {
	_, err := t.tx.NewUpdate().Model(race).WherePK().ExcludeColumn("created_at").Exec(ctx)
	return err
}

func (t catalogTx) RaceEntries(ctx context.Context, raceID int64) ([]*models.Entry, error) {
	var entries []*models.Entry
	err := t.tx.NewSelect().Model(&entries).
		Relation("Horse").
		Where("e.race_id = ?", raceID).
		Order("e.entry_id").
		Scan(ctx)
	return entries, err
}

func (t catalogTx) InsertEntry(ctx context.Context, e *models.Entry) error {
	_, err := t.tx.NewInsert().Model(e).Returning("*").Exec(ctx)
	return err
}

func (t catalogTx) UpdateEntry(ctx context.Context, e *models.Entry) error {
	_, err := t.tx.NewUpdate().Model(e).WherePK().ExcludeColumn("created_at").Exec(ctx)
	return err
}

func (t catalogTx) DeleteEntry(ctx context.Context, entryID int64) error {
	_, err := t.tx.NewDelete().Model((*models.Entry)(nil)).Where("entry_id = ?", entryID).Exec(ctx)
	return err
}

// repointSQL moves changes and claims from entry ?0 to entry ?1. Rows the
// target already holds under the same unique key are dropped instead of moved.
var repointSQL = []string{
	`DELETE FROM changes c WHERE c.entry_id = ?0 AND EXISTS (
		SELECT 1 FROM changes k
		WHERE k.entry_id = ?1 AND k.race_id = c.race_id
		  AND k.change_type = c.change_type AND k.description = c.description)`,
	`UPDATE changes SET entry_id = ?1 WHERE entry_id = ?0`,
	`DELETE FROM claims c WHERE c.entry_id = ?0 AND EXISTS (
		SELECT 1 FROM claims k WHERE k.entry_id = ?1 AND k.race_id = c.race_id)`,
	`UPDATE claims SET entry_id = ?1 WHERE entry_id = ?0`,
}

// RepointEntry moves changes and claims onto another entry.
func (t catalogTx) RepointEntry(ctx context.Context, from, to int64) error {
	for _, stmt := range repointSQL {
		if _, err := t.tx.ExecContext(ctx, stmt, from, to); err != nil {
			return fmt.Errorf("repoint %d to %d: %w", from, to, err)
		}
	}
	return nil
}

func (t catalogTx) FindHorse(ctx context.Context, key string) (*models.Horse, error) {
	h := new(models.Horse)
	ok, err := one(ctx, t.tx.NewSelect().Model(h).Where("name_key = ?", key))
	if !ok {
		return nil, err
	}
	return h, nil
}

func (t catalogTx) InsertHorse(ctx context.Context, h *models.Horse) error {
	_, err := t.tx.NewInsert().Model(h).
		On("CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key").
		Returning("*").
		Exec(ctx)
	return err
}

func (t catalogTx) FindOrCreatePerson(ctx context.Context, kind models.PersonKind, name, key string) (int64, error) {
	var id int64
	var err error
	switch kind {
	case models.KindJockey:
		p := &models.Jockey{Name: name, NameKey: key}
		_, err = t.tx.NewInsert().Model(p).
			On("CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key").
			Returning("jockey_id").
			Exec(ctx)
		id = p.JockeyID
	case models.KindTrainer:
		p := &models.Trainer{Name: name, NameKey: key}
		_, err = t.tx.NewInsert().Model(p).
			On("CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key").
			Returning("trainer_id").
			Exec(ctx)
		id = p.TrainerID
	default:
		return 0, fmt.Errorf("unknown person kind %q", kind)
	}
	return id, err
}

func (t catalogTx) InsertChange(ctx context.Context, c *models.Change) (bool, error) {
	res, err := t.tx.NewInsert().Model(c).
		On("CONFLICT (race_id, entry_id, change_type, description) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t catalogTx) UpsertClaim(ctx context.Context, c *models.Claim) error {
	_, err := t.tx.NewInsert().Model(c).
		On("CONFLICT (race_id, entry_id) DO UPDATE").
		Set("new_trainer = COALESCE(NULLIF(EXCLUDED.new_trainer, ''), cl.new_trainer)").
		Set("new_owner = COALESCE(NULLIF(EXCLUDED.new_owner, ''), cl.new_owner)").
		Set("price = COALESCE(cl.price, EXCLUDED.price)").
		Returning("NULL").
		Exec(ctx)
	return err
}

func (t catalogTx) UpsertExotic(ctx context.Context, x *models.ExoticPayout) error {
	_, err := t.tx.NewInsert().Model(x).
		On("CONFLICT (race_id, wager_type, numbers) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	return err
}
