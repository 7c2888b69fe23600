package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

// ErrMalformedKey aborts reconciliation of one race.
var ErrMalformedKey = errors.New("reconcile: malformed race key")

// RaceKey is the natural key of a race.
type RaceKey struct {
	Track  string `json:"track"`
	Date   string `json:"date"`
	Number int    `json:"number"`
}

// Validate checks the key is usable: a track, an ISO date and a positive number.
func (k RaceKey) Validate() error {
	if normalize.Name(k.Track) == "" {
		return fmt.Errorf("%w: empty track", ErrMalformedKey)
	}
	if _, err := time.Parse(time.DateOnly, k.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrMalformedKey, k.Date)
	}
	if k.Number <= 0 {
		return fmt.Errorf("%w: race number %d", ErrMalformedKey, k.Number)
	}
	return nil
}

// IsZero reports whether no field is set.
func (k RaceKey) IsZero() bool {
	return k.Track == "" && k.Date == "" && k.Number == 0
}

// Same reports whether k and o name the same race after normalization.
func (k RaceKey) Same(o RaceKey) bool {
	return normalize.Name(k.Track) == normalize.Name(o.Track) && k.Date == o.Date && k.Number == o.Number
}

func (k RaceKey) String() string {
	return fmt.Sprintf("%s/%s/R%d", k.Track, k.Date, k.Number)
}

// Payouts are per-2-unit win/place/show amounts for one entry.
type Payouts struct {
	Win   decimal.NullDecimal `json:"win"`
	Place decimal.NullDecimal `json:"place"`
	Show  decimal.NullDecimal `json:"show"`
}

// EntryImportRecord is the one contract every feed must produce for a runner.
// A zero RaceKey means "the race being reconciled".
type EntryImportRecord struct {
	RaceKey        RaceKey  `json:"race_key"`
	ProgramNumber  string   `json:"program_number"`
	HorseName      string   `json:"horse_name"`
	JockeyName     *string  `json:"jockey_name,omitempty"`
	TrainerName    *string  `json:"trainer_name,omitempty"`
	FinishPosition *int     `json:"finish_position,omitempty"`
	Payouts        *Payouts `json:"payouts,omitempty"`
	Scratched      *bool    `json:"scratched,omitempty"`
	Odds           *string  `json:"odds,omitempty"`
	Comment        *string  `json:"comment,omitempty"`
}

// ChangeRecord is a late modification seen on a feed. Both ProgramNumber and
// HorseName are optional; with neither the change is race-wide.
type ChangeRecord struct {
	RaceKey       RaceKey           `json:"race_key"`
	ProgramNumber *string           `json:"program_number,omitempty"`
	HorseName     *string           `json:"horse_name,omitempty"`
	ChangeType    models.ChangeType `json:"change_type"`
	Description   string            `json:"description"`
}

// ClaimRecord is a claim out of a race. The program number is looked up from
// the race's entries when absent.
type ClaimRecord struct {
	RaceKey       RaceKey             `json:"race_key"`
	ProgramNumber *string             `json:"program_number,omitempty"`
	HorseName     string              `json:"horse_name"`
	NewTrainer    string              `json:"new_trainer"`
	NewOwner      string              `json:"new_owner"`
	Price         decimal.NullDecimal `json:"price"`
}

// ExoticRecord is a published combination payout (per 2 units).
type ExoticRecord struct {
	WagerType string          `json:"wager_type"`
	Numbers   string          `json:"numbers"`
	Payout    decimal.Decimal `json:"payout"`
}

// RaceImport is everything one feed poll knows about a race.
type RaceImport struct {
	Key          RaceKey             `json:"key"`
	Status       *models.RaceStatus  `json:"status,omitempty"`
	CancelReason *string             `json:"cancel_reason,omitempty"`
	PostTime     *string             `json:"post_time,omitempty"`
	Distance     *float64            `json:"distance,omitempty"`
	Surface      *string             `json:"surface,omitempty"`
	Purse        decimal.NullDecimal `json:"purse"`
	Entries      []EntryImportRecord `json:"entries"`
	Changes      []ChangeRecord      `json:"changes,omitempty"`
	Claims       []ClaimRecord       `json:"claims,omitempty"`
	Exotics      []ExoticRecord      `json:"exotics,omitempty"`
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
