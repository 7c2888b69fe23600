// Package feed turns upstream feed output into reconcile.RaceImport batches:
// JSON documents on disk or stdin, and the scraper's MySQL staging tables.
package feed

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/padraicbc/mikebet/reconcile"
)

// The import contract lives with the reconciler; feed re-exports it.
type (
	RaceKey           = reconcile.RaceKey
	RaceImport        = reconcile.RaceImport
	EntryImportRecord = reconcile.EntryImportRecord
	ChangeRecord      = reconcile.ChangeRecord
	ClaimRecord       = reconcile.ClaimRecord
	ExoticRecord      = reconcile.ExoticRecord
	Payouts           = reconcile.Payouts
)

var ErrInvalidRecord = errors.New("feed: invalid record")

// Issue describes a race or record dropped during decoding.
type Issue struct {
	Index int
	Key   RaceKey
	Err   error
}

func (i Issue) String() string {
	return fmt.Sprintf("race #%d %s: %v", i.Index, i.Key, i.Err)
}

// Batch is a decoded document. Rejected races are left out of Races;
// Dropped records were removed from races that were kept.
type Batch struct {
	Races    []RaceImport
	Rejected []Issue
	Dropped  []Issue
}

// DecodeRaces reads either a JSON array of races or a stream of race
// objects. Syntax errors fail the whole document; contract violations only
// reject the race or record concerned.
func DecodeRaces(r io.Reader) (*Batch, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return &Batch{}, nil
	}
	if err != nil {
		return nil, err
	}

	var races []RaceImport
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&races); err != nil {
			return nil, fmt.Errorf("decode races: %w", err)
		}
	} else {
		for {
			var imp RaceImport
			err := dec.Decode(&imp)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("decode race %d: %w", len(races), err)
			}
			races = append(races, imp)
		}
	}

	b := &Batch{Races: make([]RaceImport, 0, len(races))}
	for i := range races {
		imp := races[i]
		if err := validateRace(&imp); err != nil {
			b.Rejected = append(b.Rejected, Issue{Index: i, Key: imp.Key, Err: err})
			continue
		}
		for _, err := range multierr.Errors(sanitize(&imp)) {
			b.Dropped = append(b.Dropped, Issue{Index: i, Key: imp.Key, Err: err})
		}
		b.Races = append(b.Races, imp)
	}
	return b, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !strings.ContainsRune(" \t\r\n", rune(c)) {
			return c, br.UnreadByte()
		}
	}
}

// validateRace checks what the reconciler cannot skip on its own.
func validateRace(imp *RaceImport) error {
	var err error
	err = multierr.Append(err, imp.Key.Validate())
	if imp.Status != nil && !imp.Status.Valid() {
		err = multierr.Append(err, fmt.Errorf("%w: status %q", ErrInvalidRecord, *imp.Status))
	}
	if imp.Purse.Valid && imp.Purse.Decimal.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("%w: purse %s", ErrInvalidRecord, imp.Purse.Decimal))
	}
	return err
}

// sanitize removes records that would store nonsense and returns why.
func sanitize(imp *RaceImport) error {
	var errs error

	for i := range imp.Entries {
		e := &imp.Entries[i]
		if e.FinishPosition != nil && *e.FinishPosition <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s finish %d", ErrInvalidRecord, e.HorseName, *e.FinishPosition))
			e.FinishPosition = nil
		}
		if e.Payouts != nil {
			for _, p := range []struct {
				name string
				v    *decimal.NullDecimal
			}{
				{"win", &e.Payouts.Win},
				{"place", &e.Payouts.Place},
				{"show", &e.Payouts.Show},
			} {
				if p.v.Valid && !p.v.Decimal.IsPositive() {
					errs = multierr.Append(errs, fmt.Errorf("%w: %s %s payout %s", ErrInvalidRecord, e.HorseName, p.name, p.v.Decimal))
					p.v.Valid = false
				}
			}
		}
	}

	exotics := imp.Exotics[:0]
	for _, x := range imp.Exotics {
		if strings.TrimSpace(x.WagerType) == "" || !x.Payout.IsPositive() {
			errs = multierr.Append(errs, fmt.Errorf("%w: exotic %q %q payout %s", ErrInvalidRecord, x.WagerType, x.Numbers, x.Payout))
			continue
		}
		exotics = append(exotics, x)
	}
	imp.Exotics = exotics

	return errs
}
