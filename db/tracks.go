package db

import (
	"context"
	"fmt"

	"github.com/padraicbc/mikebet/models"
)

// Tracks returns all tracks, optionally only those racing on date.
func (c *Catalog) Tracks(ctx context.Context, date string) ([]models.Track, error) {
	var tracks []models.Track
	q := c.db.NewSelect().
		Distinct().
		Model(&tracks).
		Column("tk.track_id", "tk.name", "tk.code", "tk.timezone").
		OrderExpr("tk.name ASC")

	if date != "" {
		q = q.Join("INNER JOIN races rc ON rc.track_id = tk.track_id").
			Where("rc.date = ?", date)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return tracks, nil
}

// UpdateTrack sets a track's code and timezone. It reports false when the
// track is unknown.
func (c *Catalog) UpdateTrack(ctx context.Context, key, code, timezone string) (bool, error) {
	res, err := c.db.NewUpdate().
		Model((*models.Track)(nil)).
		Set("code = ?", code).
		Set("timezone = ?", timezone).
		Where("name_key = ?", key).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Dates returns all distinct race dates, optionally for one track.
func (c *Catalog) Dates(ctx context.Context, trackKey string) ([]string, error) {
	var dates []string
	q := c.db.NewSelect().
		TableExpr("races AS rc").
		ColumnExpr("DISTINCT rc.date::text").
		OrderExpr("rc.date::text DESC")

	if trackKey != "" {
		q = q.Join("INNER JOIN tracks tk ON tk.track_id = rc.track_id").
			Where("tk.name_key = ?", trackKey)
	}

	if err := q.Scan(ctx, &dates); err != nil {
		return nil, err
	}
	return dates, nil
}

// SearchTrainers returns trainer names containing q, case-insensitively.
func (c *Catalog) SearchTrainers(ctx context.Context, q string) ([]string, error) {
	var names []string
	err := c.db.NewSelect().
		Model((*models.Trainer)(nil)).
		Column("name").
		Where("name ILIKE ?", fmt.Sprintf("%%%s%%", q)).
		OrderExpr("name ASC").
		Limit(50).
		Scan(ctx, &names)
	return names, err
}

// Trainer returns the trainer with the normalized key, or nil.
func (c *Catalog) Trainer(ctx context.Context, key string) (*models.Trainer, error) {
	t := new(models.Trainer)
	ok, err := one(ctx, c.db.NewSelect().Model(t).Where("name_key = ?", key))
	if !ok {
		return nil, err
	}
	return t, nil
}

// SaveTrainerNotes replaces a trainer's notes. It reports false when the
// trainer is unknown.
func (c *Catalog) SaveTrainerNotes(ctx context.Context, key, info string) (bool, error) {
	res, err := c.db.NewUpdate().
		Model((*models.Trainer)(nil)).
		Set("info = ?", info).
		Where("name_key = ?", key).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
