package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/identity"
	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

// collapse merges entries of one race that share a normalized horse name.
// Groups whose finishes or program numbers disagree are reported and left
// untouched. Running it again on a clean race is a no-op.
func (r *Reconciler) collapse(ctx context.Context, tx Tx, raceID int64, report *Report) error {
	entries, err := tx.RaceEntries(ctx, raceID)
	if err != nil {
		return fmt.Errorf("load entries for collapse: %w", err)
	}

	groups := make(map[string][]int)
	var order []string
	for i, e := range entries {
		k := horseKey(e)
		if k == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	for _, k := range order {
		idx := groups[k]
		if len(idx) < 2 {
			continue
		}
		if c, ok := disagreement(raceID, k, entries, idx); ok {
			report.conflict(r.log, c)
			continue
		}

		keep := entries[identity.PickRichest(entries, idx)]
		changed := false
		if p := normalize.Pgm(keep.Pgm); p != keep.Pgm {
			keep.Pgm = p
			changed = true
		}
		for _, i := range idx {
			loser := entries[i]
			if loser == keep {
				continue
			}
			changed = absorb(keep, loser) || changed
			if err := tx.RepointEntry(ctx, loser.EntryID, keep.EntryID); err != nil {
				return fmt.Errorf("repoint entry %d: %w", loser.EntryID, err)
			}
			if err := tx.DeleteEntry(ctx, loser.EntryID); err != nil {
				return fmt.Errorf("delete entry %d: %w", loser.EntryID, err)
			}
			report.Merged++
			r.log.Info("collapsed duplicate entry",
				zap.Int64("race_id", raceID),
				zap.String("horse_key", k),
				zap.Int64("kept", keep.EntryID),
				zap.Int64("deleted", loser.EntryID),
			)
		}
		if changed {
			keep.UpdatedAt = r.now()
			if err := tx.UpdateEntry(ctx, keep); err != nil {
				return fmt.Errorf("update kept entry %d: %w", keep.EntryID, err)
			}
		}
	}
	return nil
}

func disagreement(raceID int64, key string, entries []*models.Entry, idx []int) (Conflict, bool) {
	finishes := make(map[int]struct{})
	pgms := make(map[string]struct{})
	ids := make([]int64, 0, len(idx))
	for _, i := range idx {
		e := entries[i]
		ids = append(ids, e.EntryID)
		if e.Finish != nil {
			finishes[*e.Finish] = struct{}{}
		}
		if p := normalize.Pgm(e.Pgm); p != normalize.ZeroPgm {
			pgms[p] = struct{}{}
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	switch {
	case len(finishes) > 1:
		return Conflict{
			RaceID: raceID, Kind: ConflictFinish, HorseKey: key, EntryIDs: ids,
			Detail: fmt.Sprintf("%d different finishing positions", len(finishes)),
		}, true
	case len(pgms) > 1:
		return Conflict{
			RaceID: raceID, Kind: ConflictPgm, HorseKey: key, EntryIDs: ids,
			Detail: fmt.Sprintf("%d different program numbers", len(pgms)),
		}, true
	}
	return Conflict{}, false
}

// absorb copies what keep lacks from loser.
func absorb(keep, loser *models.Entry) bool {
	changed := false
	if keep.Finish == nil && loser.Finish != nil {
		v := *loser.Finish
		keep.Finish = &v
		changed = true
	}
	changed = fillDecimal(&keep.WinPayout, loser.WinPayout) || changed
	changed = fillDecimal(&keep.PlacePayout, loser.PlacePayout) || changed
	changed = fillDecimal(&keep.ShowPayout, loser.ShowPayout) || changed
	changed = fillString(&keep.Odds, loser.Odds) || changed
	changed = fillString(&keep.Comment, loser.Comment) || changed
	if keep.JockeyID == nil && loser.JockeyID != nil {
		keep.JockeyID = loser.JockeyID
		changed = true
	}
	if keep.TrainerID == nil && loser.TrainerID != nil {
		keep.TrainerID = loser.TrainerID
		changed = true
	}
	if normalize.Pgm(keep.Pgm) == normalize.ZeroPgm && normalize.Pgm(loser.Pgm) != normalize.ZeroPgm {
		keep.Pgm = normalize.Pgm(loser.Pgm)
		keep.ProgramNumber = loser.ProgramNumber
		changed = true
	}
	if loser.Scratched && !keep.Scratched {
		keep.Scratched = true
		changed = true
	}
	return changed
}

func fillDecimal(dst *decimal.NullDecimal, src decimal.NullDecimal) bool {
	if dst.Valid || !src.Valid {
		return false
	}
	*dst = src
	return true
}

func fillString(dst **string, src *string) bool {
	if *dst != nil && **dst != "" {
		return false
	}
	v := trimmed(src)
	if v == "" {
		return false
	}
	*dst = &v
	return true
}
