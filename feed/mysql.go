package feed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/padraicbc/mikebet/models"
)

// Staged is one race assembled from staging rows, with the row ids to mark
// consumed once it has been reconciled.
type Staged struct {
	Import    RaceImport
	raceIDs   []int64
	entryIDs  []int64
	changeIDs []int64
}

// MySQLStaging reads the scraper's staging tables. Rows are consumed only
// after Ack, so a failed reconcile is picked up again on the next pull.
type MySQLStaging struct {
	db        *sql.DB
	batchSize int
}

// OpenMySQLStaging connects to the staging database. parseTime is forced on.
func OpenMySQLStaging(ctx context.Context, dsn string, batchSize int) (*MySQLStaging, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(4)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return NewMySQLStaging(db, batchSize), nil
}

// NewMySQLStaging wraps an open connection.
func NewMySQLStaging(db *sql.DB, batchSize int) *MySQLStaging {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &MySQLStaging{db: db, batchSize: batchSize}
}

func (m *MySQLStaging) Close() error { return m.db.Close() }

type stagedRace struct {
	id       int64
	key      RaceKey
	status   sql.NullString
	postTime sql.NullString
	distance sql.NullFloat64
	surface  sql.NullString
	purse    decimal.NullDecimal
}

type stagedEntry struct {
	id               int64
	key              RaceKey
	pgm              sql.NullString
	horse            string
	jockey, trainer  sql.NullString
	finish           sql.NullInt64
	win, place, show decimal.NullDecimal
	scratched        sql.NullBool
	odds, comment    sql.NullString
}

type stagedChange struct {
	id          int64
	key         RaceKey
	pgm         sql.NullString
	horse       sql.NullString
	changeType  string
	description string
}

// Pull reads up to one batch of unconsumed rows of each kind and groups them
// by race.
func (m *MySQLStaging) Pull(ctx context.Context) ([]Staged, error) {
	races, err := m.races(ctx)
	if err != nil {
		return nil, fmt.Errorf("staged races: %w", err)
	}
	entries, err := m.entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("staged entries: %w", err)
	}
	changes, err := m.changes(ctx)
	if err != nil {
		return nil, fmt.Errorf("staged changes: %w", err)
	}
	return group(races, entries, changes), nil
}

// Ack marks a race's rows consumed.
func (m *MySQLStaging) Ack(ctx context.Context, s Staged) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for table, ids := range map[string][]int64{
		"staged_races":   s.raceIDs,
		"staged_entries": s.entryIDs,
		"staged_changes": s.changeIDs,
	} {
		if len(ids) == 0 {
			continue
		}
		q := fmt.Sprintf("UPDATE %s SET consumed_at = UTC_TIMESTAMP() WHERE id IN (%s)", table, placeholders(len(ids)))
		if _, err := tx.ExecContext(ctx, q, int64Args(ids)...); err != nil {
			return fmt.Errorf("ack %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *MySQLStaging) races(ctx context.Context) ([]stagedRace, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, track, race_date, race_number, status, post_time, distance, surface, purse
		 FROM staged_races WHERE consumed_at IS NULL ORDER BY id LIMIT ?`, m.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stagedRace
	for rows.Next() {
		var r stagedRace
		var day time.Time
		if err := rows.Scan(&r.id, &r.key.Track, &day, &r.key.Number, &r.status, &r.postTime, &r.distance, &r.surface, &r.purse); err != nil {
			return out, err
		}
		r.key.Date = fmtDate(day)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLStaging) entries(ctx context.Context) ([]stagedEntry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, track, race_date, race_number, program_number, horse_name, jockey, trainer,
		        finish, win_payout, place_payout, show_payout, scratched, odds, comment
		 FROM staged_entries WHERE consumed_at IS NULL ORDER BY id LIMIT ?`, m.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stagedEntry
	for rows.Next() {
		var r stagedEntry
		var day time.Time
		if err := rows.Scan(&r.id, &r.key.Track, &day, &r.key.Number, &r.pgm, &r.horse, &r.jockey, &r.trainer,
			&r.finish, &r.win, &r.place, &r.show, &r.scratched, &r.odds, &r.comment); err != nil {
			return out, err
		}
		r.key.Date = fmtDate(day)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLStaging) changes(ctx context.Context) ([]stagedChange, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, track, race_date, race_number, program_number, horse_name, change_type, description
		 FROM staged_changes WHERE consumed_at IS NULL ORDER BY id LIMIT ?`, m.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stagedChange
	for rows.Next() {
		var r stagedChange
		var day time.Time
		if err := rows.Scan(&r.id, &r.key.Track, &day, &r.key.Number, &r.pgm, &r.horse, &r.changeType, &r.description); err != nil {
			return out, err
		}
		r.key.Date = fmtDate(day)
		out = append(out, r)
	}
	return out, rows.Err()
}

// group assembles staging rows into races in first-seen order. Races with a
// malformed key still come through; the reconciler rejects them.
func group(races []stagedRace, entries []stagedEntry, changes []stagedChange) []Staged {
	var out []Staged
	index := map[string]int{}
	at := func(k RaceKey) *Staged {
		id := strings.ToLower(strings.TrimSpace(k.Track)) + "|" + k.Date + "|" + fmt.Sprint(k.Number)
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, Staged{Import: RaceImport{Key: k}})
		}
		return &out[i]
	}

	for _, r := range races {
		s := at(r.key)
		s.raceIDs = append(s.raceIDs, r.id)
		if r.status.Valid {
			st := models.RaceStatus(strings.ToLower(strings.TrimSpace(r.status.String)))
			s.Import.Status = &st
		}
		s.Import.PostTime = nullStr(r.postTime)
		s.Import.Distance = nullFloat(r.distance)
		s.Import.Surface = nullStr(r.surface)
		s.Import.Purse = r.purse
	}
	for _, e := range entries {
		s := at(e.key)
		s.entryIDs = append(s.entryIDs, e.id)
		rec := EntryImportRecord{
			ProgramNumber:  e.pgm.String,
			HorseName:      e.horse,
			JockeyName:     nullStr(e.jockey),
			TrainerName:    nullStr(e.trainer),
			FinishPosition: nullInt(e.finish),
			Odds:           nullStr(e.odds),
			Comment:        nullStr(e.comment),
		}
		if e.win.Valid || e.place.Valid || e.show.Valid {
			rec.Payouts = &Payouts{Win: e.win, Place: e.place, Show: e.show}
		}
		if e.scratched.Valid {
			v := e.scratched.Bool
			rec.Scratched = &v
		}
		s.Import.Entries = append(s.Import.Entries, rec)
	}
	for _, c := range changes {
		s := at(c.key)
		s.changeIDs = append(s.changeIDs, c.id)
		s.Import.Changes = append(s.Import.Changes, ChangeRecord{
			ProgramNumber: nullStr(c.pgm),
			HorseName:     nullStr(c.horse),
			ChangeType:    changeType(c.changeType),
			Description:   c.description,
		})
	}
	return out
}

func changeType(s string) models.ChangeType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scratch", "scratched":
		return models.ChangeScratch
	case "jockey", "rider":
		return models.ChangeJockey
	case "equipment":
		return models.ChangeEquipment
	case "weight":
		return models.ChangeWeight
	case "cancellation", "cancelled", "canceled":
		return models.ChangeCancellation
	}
	return models.ChangeOther
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func fmtDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
