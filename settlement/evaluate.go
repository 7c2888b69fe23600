package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

// ErrMalformedWager marks a wager whose selection cannot be evaluated.
var ErrMalformedWager = errors.New("settlement: malformed wager")

// DefaultGrace is how long past the end of race day a pending wager waits
// before the stale sweep resolves it.
const DefaultGrace = 48 * time.Hour

var two = decimal.NewFromInt(2)

// RaceCard is the reconciled state a wager settles against.
type RaceCard struct {
	Race    models.Race
	Entries []models.Entry
	Exotics []models.ExoticPayout
}

// entry returns the row for a normalized program number, the richest one if
// cleanup has not yet run.
func (c *RaceCard) entry(pgm string) *models.Entry {
	var best *models.Entry
	for i := range c.Entries {
		e := &c.Entries[i]
		if normalize.Pgm(e.Pgm) != pgm {
			continue
		}
		if best == nil || (best.Finish == nil && e.Finish != nil) || (e.Scratched && !best.Scratched) {
			best = e
		}
	}
	return best
}

// finishers returns the program numbers finishing at each position 1..depth.
// Dead heats put several numbers in one slot.
func (c *RaceCard) finishers(depth int) [][]string {
	out := make([][]string, depth)
	for _, e := range c.Entries {
		if e.Finish == nil || e.Scratched || *e.Finish < 1 || *e.Finish > depth {
			continue
		}
		out[*e.Finish-1] = append(out[*e.Finish-1], normalize.Pgm(e.Pgm))
	}
	return out
}

// exotic returns the first published payout for a combination label.
func (c *RaceCard) exotic(label string) (decimal.Decimal, bool) {
	for _, x := range c.Exotics {
		if strings.EqualFold(strings.TrimSpace(x.WagerType), label) {
			return x.Payout, true
		}
	}
	return decimal.Zero, false
}

// Decision is the outcome of evaluating one wager.
type Decision struct {
	Status models.WagerStatus
	Payout decimal.Decimal
	Reason string
}

func pending(reason string) Decision {
	return Decision{Status: models.WagerPending, Payout: decimal.Zero, Reason: reason}
}

func loss(reason string) Decision {
	return Decision{Status: models.WagerLoss, Payout: decimal.Zero, Reason: reason}
}

func refund(w *models.Wager, reason string) Decision {
	return Decision{Status: models.WagerReturned, Payout: w.Stake, Reason: reason}
}

// scale turns a per-2-unit payout into the amount due on stake.
func scale(perTwo, stake decimal.Decimal) decimal.Decimal {
	return perTwo.Div(two).Mul(stake).Round(2)
}

// Evaluate runs the scratch check, the completion check and the result rules.
// It never looks at the clock; stale wagers are Sweep's job.
func Evaluate(w *models.Wager, card *RaceCard) (Decision, error) {
	if err := validate(w); err != nil {
		return Decision{}, err
	}

	for _, p := range w.Selected() {
		if e := card.entry(normalize.Pgm(p)); e != nil && e.Scratched {
			return refund(w, fmt.Sprintf("#%s scratched", normalize.Pgm(p))), nil
		}
	}

	if !card.Race.Completed() {
		return pending("race not completed"), nil
	}

	if positions := w.Type.Positions(); positions != nil {
		return single(w, card, positions), nil
	}
	return combination(w, card), nil
}

func single(w *models.Wager, card *RaceCard, positions []models.Position) Decision {
	pgm := normalize.Pgm(w.Legs[0][0])
	e := card.entry(pgm)
	if e == nil {
		return loss(fmt.Sprintf("#%s not entered", pgm))
	}
	if e.Finish == nil {
		return loss(fmt.Sprintf("#%s has no finish", pgm))
	}

	total := decimal.Zero
	for _, pos := range positions {
		if *e.Finish > int(pos) {
			continue
		}
		var perTwo decimal.NullDecimal
		switch pos {
		case models.PosWin:
			perTwo = e.WinPayout
		case models.PosPlace:
			perTwo = e.PlacePayout
		case models.PosShow:
			perTwo = e.ShowPayout
		}
		if perTwo.Valid {
			total = total.Add(scale(perTwo.Decimal, w.Stake))
		}
	}
	if !total.IsPositive() {
		return loss(fmt.Sprintf("#%s finished %d", pgm, *e.Finish))
	}
	return Decision{Status: models.WagerWin, Payout: total, Reason: fmt.Sprintf("#%s finished %d", pgm, *e.Finish)}
}

func combination(w *models.Wager, card *RaceCard) Decision {
	depth := w.Type.Depth()
	top := card.finishers(depth)
	for i, slot := range top {
		if len(slot) == 0 {
			return loss(fmt.Sprintf("no finisher recorded in position %d", i+1))
		}
	}

	var hit bool
	if w.Type.Boxed() {
		hit = boxHit(normalize.Pgms(w.Selected()), top)
	} else {
		hit = orderedHit(w.Legs, top)
	}
	if !hit {
		return loss("combination missed")
	}

	perTwo, ok := card.exotic(w.Type.Label())
	if !ok {
		return pending(w.Type.Label() + " payout not published")
	}
	return Decision{Status: models.WagerWin, Payout: scale(perTwo, w.Stake), Reason: w.Type.Label() + " hit"}
}

// boxHit reports whether the selection covers every one of the top positions.
func boxHit(selection []string, top [][]string) bool {
	used := make(map[string]bool, len(selection))
	for _, slot := range top {
		found := false
		for _, p := range slot {
			if contains(selection, p) && !used[p] {
				used[p] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// orderedHit reports whether each slot holds the finisher of its position.
func orderedHit(legs [][]string, top [][]string) bool {
	for i, slot := range top {
		leg := normalize.Pgms(legs[i])
		found := false
		for _, p := range slot {
			if contains(leg, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Sweep resolves a wager still pending after the grace window: a cancelled
// race refunds, an unfinished one loses, a completed one whose payout never
// appeared refunds.
func Sweep(w *models.Wager, card *RaceCard, now time.Time, grace time.Duration) (Decision, error) {
	day, err := card.Race.RaceDay()
	if err != nil {
		return Decision{}, fmt.Errorf("race %d date %q: %w", card.Race.RaceID, card.Race.Date, err)
	}
	cutoff := day.AddDate(0, 0, 1).Add(grace)
	if now.Before(cutoff) {
		return pending("within grace window"), nil
	}

	switch {
	case card.Race.Cancelled || card.Race.Status == models.RaceCancelled:
		return refund(w, "race cancelled"), nil
	case !card.Race.Completed():
		return loss("race past due without result"), nil
	}
	return refund(w, "payout never published"), nil
}

func validate(w *models.Wager) error {
	if !w.Type.Valid() {
		return fmt.Errorf("%w: wager %d type %q", ErrMalformedWager, w.WagerID, w.Type)
	}
	if !w.Stake.IsPositive() {
		return fmt.Errorf("%w: wager %d stake %s", ErrMalformedWager, w.WagerID, w.Stake)
	}
	for _, leg := range w.Legs {
		if len(leg) == 0 {
			return fmt.Errorf("%w: wager %d has an empty leg", ErrMalformedWager, w.WagerID)
		}
	}

	switch {
	case w.Type.Positions() != nil:
		if len(w.Legs) != 1 || len(w.Legs[0]) != 1 {
			return fmt.Errorf("%w: wager %d needs exactly one horse", ErrMalformedWager, w.WagerID)
		}
	case w.Type.Boxed():
		if n := len(w.Selected()); n < w.Type.Depth() {
			return fmt.Errorf("%w: wager %d boxes %d horses, needs %d", ErrMalformedWager, w.WagerID, n, w.Type.Depth())
		}
	default:
		if len(w.Legs) != w.Type.Depth() {
			return fmt.Errorf("%w: wager %d has %d legs, needs %d", ErrMalformedWager, w.WagerID, len(w.Legs), w.Type.Depth())
		}
	}
	return nil
}

// Validate exposes the selection checks to callers placing wagers.
func Validate(w *models.Wager) error { return validate(w) }
