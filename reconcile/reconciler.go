// Package reconcile upserts a race's roster from feed records so that repeated
// and out-of-order imports converge on one entry per runner.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/identity"
	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

var (
	ErrRaceNotFound = errors.New("reconcile: race not found")
	ErrNotCancelled = errors.New("reconcile: race is not cancelled")
)

// Reconciler is the only write path into the race catalog.
type Reconciler struct {
	store    Store
	resolver *identity.Resolver
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Reconciler.
func New(store Store, resolver *identity.Resolver, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		resolver: resolver,
		log:      log.With(zap.String("component", "reconciler")),
		now:      time.Now,
	}
}

// Reconcile upserts the given entry records into the race named by key.
func (r *Reconciler) Reconcile(ctx context.Context, key RaceKey, records []EntryImportRecord) (*Report, error) {
	return r.ReconcileRace(ctx, RaceImport{Key: key, Entries: records})
}

// ReconcileRace applies one race import as a single unit. Only a malformed key
// or a storage failure returns an error; bad records are skipped and counted.
func (r *Reconciler) ReconcileRace(ctx context.Context, imp RaceImport) (*Report, error) {
	if err := imp.Key.Validate(); err != nil {
		return nil, err
	}

	report := &Report{}
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		*report = Report{}
		run := &raceRun{r: r, tx: tx, report: report, key: imp.Key}
		return run.apply(ctx, imp)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", imp.Key, err)
	}

	r.log.Info("race reconciled", append([]zap.Field{zap.Stringer("race", imp.Key)}, report.Fields()...)...)
	return report, nil
}

// CollapseDuplicates runs zombie cleanup alone on one race.
func (r *Reconciler) CollapseDuplicates(ctx context.Context, raceID int64) (*Report, error) {
	report := &Report{RaceID: raceID}
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		*report = Report{RaceID: raceID}
		return r.collapse(ctx, tx, raceID, report)
	})
	if err != nil {
		return nil, fmt.Errorf("collapse race %d: %w", raceID, err)
	}
	return report, nil
}

// Reopen is the operator path that takes a cancelled race back to upcoming.
func (r *Reconciler) Reopen(ctx context.Context, key RaceKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return r.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		track, err := tx.FindTrack(ctx, normalize.Name(key.Track))
		if err != nil {
			return err
		}
		if track == nil {
			return fmt.Errorf("%w: %s", ErrRaceNotFound, key)
		}
		race, err := tx.FindRace(ctx, track.TrackID, key.Date, key.Number)
		if err != nil {
			return err
		}
		if race == nil {
			return fmt.Errorf("%w: %s", ErrRaceNotFound, key)
		}
		if race.Status != models.RaceCancelled {
			return fmt.Errorf("%w: %s is %s", ErrNotCancelled, key, race.Status)
		}
		race.Status = models.RaceUpcoming
		race.Cancelled = false
		race.CancelReason = nil
		race.UpdatedAt = r.now()
		if err := tx.UpdateRace(ctx, race); err != nil {
			return err
		}
		r.log.Warn("race reopened", zap.Stringer("race", key), zap.Int64("race_id", race.RaceID))
		return nil
	})
}

// raceRun holds the state of one race's reconciliation.
type raceRun struct {
	r         *Reconciler
	tx        Tx
	report    *Report
	key       RaceKey
	race      *models.Race
	raceDirty bool
	entries   []*models.Entry
}

func (rr *raceRun) apply(ctx context.Context, imp RaceImport) error {
	if err := rr.loadRace(ctx, imp); err != nil {
		return err
	}
	rr.report.RaceID = rr.race.RaceID

	entries, err := rr.tx.RaceEntries(ctx, rr.race.RaceID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	rr.entries = entries

	for _, rec := range imp.Entries {
		if !rec.RaceKey.IsZero() && !rec.RaceKey.Same(rr.key) {
			rr.report.Skipped++
			rr.r.log.Warn("entry record for another race", zap.Stringer("race", rr.key), zap.Stringer("record_race", rec.RaceKey))
			continue
		}
		if err := rr.upsert(ctx, rec); err != nil {
			return err
		}
	}
	for _, ch := range imp.Changes {
		if err := rr.change(ctx, ch); err != nil {
			return err
		}
	}
	for _, cl := range imp.Claims {
		if err := rr.claim(ctx, cl); err != nil {
			return err
		}
	}
	for _, x := range imp.Exotics {
		if err := rr.exotic(ctx, x); err != nil {
			return err
		}
	}

	switch {
	case imp.Status != nil:
		rr.advance(*imp.Status)
	case rr.anyFinish():
		rr.advance(models.RacePartiallyKnown)
	}
	if rr.raceDirty {
		rr.race.UpdatedAt = rr.r.now()
		if err := rr.tx.UpdateRace(ctx, rr.race); err != nil {
			return fmt.Errorf("update race: %w", err)
		}
	}

	// Collapse only once every upsert above has landed.
	return rr.r.collapse(ctx, rr.tx, rr.race.RaceID, rr.report)
}

func (rr *raceRun) loadRace(ctx context.Context, imp RaceImport) error {
	track, err := rr.tx.FindOrCreateTrack(ctx, strings.TrimSpace(imp.Key.Track), normalize.Name(imp.Key.Track))
	if err != nil {
		return fmt.Errorf("track: %w", err)
	}
	race, err := rr.tx.FindRace(ctx, track.TrackID, imp.Key.Date, imp.Key.Number)
	if err != nil {
		return fmt.Errorf("find race: %w", err)
	}

	if race == nil {
		now := rr.r.now()
		rr.race = &models.Race{
			TrackID:   track.TrackID,
			Date:      imp.Key.Date,
			Number:    imp.Key.Number,
			Status:    models.RaceUpcoming,
			CreatedAt: now,
			UpdatedAt: now,
		}
		rr.fillRace(imp)
		if err := rr.tx.InsertRace(ctx, rr.race); err != nil {
			return fmt.Errorf("insert race: %w", err)
		}
		rr.raceDirty = false
		return nil
	}

	rr.race = race
	rr.fillRace(imp)
	return nil
}

// fillRace copies race metadata that is still unknown.
func (rr *raceRun) fillRace(imp RaceImport) {
	race := rr.race
	if race.PostTime == nil && trimmed(imp.PostTime) != "" {
		v := trimmed(imp.PostTime)
		race.PostTime = &v
		rr.raceDirty = true
	}
	if race.Distance == nil && imp.Distance != nil && *imp.Distance > 0 {
		v := *imp.Distance
		race.Distance = &v
		rr.raceDirty = true
	}
	if race.Surface == nil && trimmed(imp.Surface) != "" {
		v := trimmed(imp.Surface)
		race.Surface = &v
		rr.raceDirty = true
	}
	if !race.Purse.Valid && imp.Purse.Valid {
		race.Purse = imp.Purse
		rr.raceDirty = true
	}
	if race.CancelReason == nil && trimmed(imp.CancelReason) != "" {
		v := trimmed(imp.CancelReason)
		race.CancelReason = &v
		rr.raceDirty = true
	}
}

// advance moves the race status forward; regressions are ignored.
func (rr *raceRun) advance(next models.RaceStatus) {
	cur := rr.race.Status
	if !cur.CanAdvance(next) {
		if cur != next {
			rr.r.log.Debug("ignored status change",
				zap.Int64("race_id", rr.race.RaceID),
				zap.String("from", string(cur)),
				zap.String("to", string(next)),
			)
		}
		return
	}
	rr.race.Status = next
	if next == models.RaceCancelled {
		rr.race.Cancelled = true
	}
	rr.raceDirty = true
}

func (rr *raceRun) anyFinish() bool {
	for _, e := range rr.entries {
		if e.Finish != nil {
			return true
		}
	}
	return false
}

func (rr *raceRun) upsert(ctx context.Context, rec EntryImportRecord) error {
	name := strings.TrimSpace(rec.HorseName)
	hkey := normalize.Name(name)
	if hkey == "" {
		rr.report.Skipped++
		rr.r.log.Debug("skipped entry without horse name", zap.Stringer("race", rr.key), zap.String("pgm", rec.ProgramNumber))
		return nil
	}
	pgm := normalize.Pgm(rec.ProgramNumber)

	horse, err := rr.resolveHorse(ctx, name, hkey)
	if errors.Is(err, identity.ErrAmbiguous) {
		rr.report.Skipped++
		rr.report.conflict(rr.r.log, Conflict{
			RaceID: rr.race.RaceID, Kind: ConflictAmbiguous, HorseKey: hkey, Detail: err.Error(),
		})
		return nil
	}
	if err != nil {
		return err
	}

	entry, taken := rr.locateEntry(hkey, horse, pgm)
	if taken != nil {
		rr.report.Skipped++
		rr.report.conflict(rr.r.log, Conflict{
			RaceID:   rr.race.RaceID,
			Kind:     ConflictReassign,
			HorseKey: hkey,
			EntryIDs: []int64{taken.EntryID},
			Detail:   fmt.Sprintf("pgm %s already held by another horse", pgm),
		})
		return nil
	}

	if entry == nil {
		now := rr.r.now()
		entry = &models.Entry{
			RaceID:        rr.race.RaceID,
			HorseID:       horse.HorseID,
			ProgramNumber: strings.TrimSpace(rec.ProgramNumber),
			Pgm:           pgm,
			CreatedAt:     now,
			UpdatedAt:     now,
			Horse:         horse,
		}
		if _, err := rr.fill(ctx, entry, rec, pgm); err != nil {
			return err
		}
		if err := rr.tx.InsertEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert entry %s: %w", pgm, err)
		}
		rr.entries = append(rr.entries, entry)
		rr.report.Created++
		return nil
	}

	changed, err := rr.fill(ctx, entry, rec, pgm)
	if err != nil {
		return err
	}
	if !changed {
		rr.report.Unchanged++
		return nil
	}
	entry.UpdatedAt = rr.r.now()
	if err := rr.tx.UpdateEntry(ctx, entry); err != nil {
		return fmt.Errorf("update entry %d: %w", entry.EntryID, err)
	}
	rr.report.Updated++
	return nil
}

// resolveHorse looks in the race first, then the global catalog, then creates.
func (rr *raceRun) resolveHorse(ctx context.Context, name, key string) (*models.Horse, error) {
	m, err := rr.r.resolver.ResolveName(key, rr.horseKeys())
	switch {
	case err == nil:
		for _, i := range m.Indices {
			if rr.entries[i].Horse == nil {
				return nil, fmt.Errorf("entry %d loaded without horse", rr.entries[i].EntryID)
			}
		}
		return rr.entries[identity.PickRichest(rr.entries, m.Indices)].Horse, nil
	case !errors.Is(err, identity.ErrNoMatch):
		return nil, err
	}

	h, err := rr.tx.FindHorse(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find horse: %w", err)
	}
	if h != nil {
		return h, nil
	}
	h = &models.Horse{Name: name, NameKey: key, CreatedAt: rr.r.now()}
	if err := rr.tx.InsertHorse(ctx, h); err != nil {
		return nil, fmt.Errorf("insert horse %q: %w", name, err)
	}
	return h, nil
}

// locateEntry finds the entry row a record updates. taken is set when the
// program number belongs to a different horse.
func (rr *raceRun) locateEntry(hkey string, horse *models.Horse, pgm string) (entry, taken *models.Entry) {
	if pgm != normalize.ZeroPgm {
		if m, err := rr.r.resolver.ResolvePgm(pgm, rr.pgms()); err == nil {
			var same []int
			for _, i := range m.Indices {
				if sameHorse(rr.entries[i], horse, hkey) {
					same = append(same, i)
				}
			}
			if len(same) == 0 {
				return nil, rr.entries[m.Indices[0]]
			}
			return rr.entries[identity.PickRichest(rr.entries, same)], nil
		}
	}

	// No row under this number: reuse the horse's row only when one side has
	// no program number. Two real numbers for one horse become duplicates that
	// collapse reports.
	var idx []int
	for i, e := range rr.entries {
		if !sameHorse(e, horse, hkey) {
			continue
		}
		if pgm == normalize.ZeroPgm || normalize.Pgm(e.Pgm) == normalize.ZeroPgm {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, nil
	}
	return rr.entries[identity.PickRichest(rr.entries, idx)], nil
}

// fill applies incoming fields only where the entry has none. Scratch only
// ever moves to true.
func (rr *raceRun) fill(ctx context.Context, e *models.Entry, rec EntryImportRecord, pgm string) (bool, error) {
	changed := false

	if e.JockeyID == nil {
		if name := trimmed(rec.JockeyName); normalize.Name(name) != "" {
			id, err := rr.tx.FindOrCreatePerson(ctx, models.KindJockey, name, normalize.Name(name))
			if err != nil {
				return false, fmt.Errorf("jockey %q: %w", name, err)
			}
			e.JockeyID = &id
			changed = true
		}
	}
	if e.TrainerID == nil {
		if name := trimmed(rec.TrainerName); normalize.Name(name) != "" {
			id, err := rr.tx.FindOrCreatePerson(ctx, models.KindTrainer, name, normalize.Name(name))
			if err != nil {
				return false, fmt.Errorf("trainer %q: %w", name, err)
			}
			e.TrainerID = &id
			changed = true
		}
	}
	if e.Finish == nil && rec.FinishPosition != nil && *rec.FinishPosition > 0 {
		v := *rec.FinishPosition
		e.Finish = &v
		changed = true
	}
	if rec.Payouts != nil {
		changed = fillDecimal(&e.WinPayout, rec.Payouts.Win) || changed
		changed = fillDecimal(&e.PlacePayout, rec.Payouts.Place) || changed
		changed = fillDecimal(&e.ShowPayout, rec.Payouts.Show) || changed
	}
	changed = fillString(&e.Odds, rec.Odds) || changed
	changed = fillString(&e.Comment, rec.Comment) || changed

	if normalize.Pgm(e.Pgm) == normalize.ZeroPgm && pgm != normalize.ZeroPgm {
		e.Pgm = pgm
		e.ProgramNumber = strings.TrimSpace(rec.ProgramNumber)
		changed = true
	}
	if rec.Scratched != nil && *rec.Scratched && !e.Scratched {
		e.Scratched = true
		rr.report.Scratched++
		changed = true
	}
	return changed, nil
}

func (rr *raceRun) change(ctx context.Context, rec ChangeRecord) error {
	if !rec.RaceKey.IsZero() && !rec.RaceKey.Same(rr.key) {
		rr.report.Skipped++
		return nil
	}
	desc := strings.TrimSpace(rec.Description)
	typ := rec.ChangeType
	switch typ {
	case models.ChangeScratch, models.ChangeJockey, models.ChangeEquipment,
		models.ChangeWeight, models.ChangeCancellation, models.ChangeOther:
	default:
		typ = models.ChangeOther
	}

	entryBound := trimmed(rec.ProgramNumber) != "" || trimmed(rec.HorseName) != ""
	var entry *models.Entry
	if entryBound {
		entry = rr.locate(rec.ProgramNumber, rec.HorseName)
		if entry == nil {
			rr.report.Skipped++
			rr.r.log.Warn("change for unknown entry stored race-wide",
				zap.Stringer("race", rr.key),
				zap.String("type", string(typ)),
				zap.String("pgm", trimmed(rec.ProgramNumber)),
				zap.String("horse", trimmed(rec.HorseName)),
			)
		}
	}

	c := &models.Change{
		RaceID:      rr.race.RaceID,
		ChangeType:  typ,
		Description: desc,
		CreatedAt:   rr.r.now(),
	}
	if entry != nil {
		c.EntryID = entry.EntryID
	}
	inserted, err := rr.tx.InsertChange(ctx, c)
	if err != nil {
		return fmt.Errorf("insert change: %w", err)
	}
	if inserted {
		rr.report.Changes++
	} else {
		rr.report.DuplicateChanges++
	}

	switch {
	case typ == models.ChangeScratch && entry != nil && !entry.Scratched:
		entry.Scratched = true
		entry.UpdatedAt = rr.r.now()
		if err := rr.tx.UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("scratch entry %d: %w", entry.EntryID, err)
		}
		rr.report.Scratched++
	case typ == models.ChangeCancellation && !entryBound:
		rr.advance(models.RaceCancelled)
		if rr.race.CancelReason == nil && desc != "" {
			rr.race.CancelReason = &desc
			rr.raceDirty = true
		}
	}
	return nil
}

func (rr *raceRun) claim(ctx context.Context, rec ClaimRecord) error {
	if !rec.RaceKey.IsZero() && !rec.RaceKey.Same(rr.key) {
		rr.report.SkippedClaims++
		return nil
	}
	name := rec.HorseName
	entry := rr.locate(rec.ProgramNumber, &name)
	if entry == nil {
		rr.report.SkippedClaims++
		rr.r.log.Warn("claim without matching entry",
			zap.Stringer("race", rr.key),
			zap.String("horse", rec.HorseName),
			zap.String("pgm", trimmed(rec.ProgramNumber)),
		)
		return nil
	}
	c := &models.Claim{
		RaceID:     rr.race.RaceID,
		EntryID:    entry.EntryID,
		Pgm:        normalize.Pgm(entry.Pgm),
		NewTrainer: strings.TrimSpace(rec.NewTrainer),
		NewOwner:   strings.TrimSpace(rec.NewOwner),
		Price:      rec.Price,
	}
	if err := rr.tx.UpsertClaim(ctx, c); err != nil {
		return fmt.Errorf("upsert claim: %w", err)
	}
	rr.report.Claims++
	return nil
}

func (rr *raceRun) exotic(ctx context.Context, rec ExoticRecord) error {
	label := strings.TrimSpace(rec.WagerType)
	if label == "" || !rec.Payout.IsPositive() {
		rr.report.Skipped++
		return nil
	}
	x := &models.ExoticPayout{
		RaceID:    rr.race.RaceID,
		WagerType: label,
		Numbers:   strings.TrimSpace(rec.Numbers),
		Payout:    rec.Payout,
	}
	if err := rr.tx.UpsertExotic(ctx, x); err != nil {
		return fmt.Errorf("upsert exotic: %w", err)
	}
	rr.report.Exotics++
	return nil
}

// locate finds an entry by program number, then by horse name.
func (rr *raceRun) locate(pgm, name *string) *models.Entry {
	if p := trimmed(pgm); p != "" {
		if n := normalize.Pgm(p); n != normalize.ZeroPgm {
			if m, err := rr.r.resolver.ResolvePgm(n, rr.pgms()); err == nil {
				return rr.entries[identity.PickRichest(rr.entries, m.Indices)]
			}
		}
	}
	if key := normalize.Name(trimmed(name)); key != "" {
		if m, err := rr.r.resolver.ResolveName(key, rr.horseKeys()); err == nil {
			return rr.entries[identity.PickRichest(rr.entries, m.Indices)]
		}
	}
	return nil
}

func (rr *raceRun) pgms() []string {
	out := make([]string, len(rr.entries))
	for i, e := range rr.entries {
		out[i] = normalize.Pgm(e.Pgm)
	}
	return out
}

func (rr *raceRun) horseKeys() []string {
	out := make([]string, len(rr.entries))
	for i, e := range rr.entries {
		out[i] = horseKey(e)
	}
	return out
}

func horseKey(e *models.Entry) string {
	if e.Horse == nil {
		return ""
	}
	return normalize.Name(e.Horse.Name)
}

func sameHorse(e *models.Entry, h *models.Horse, key string) bool {
	return e.HorseID == h.HorseID || horseKey(e) == key
}
