package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Entry is a horse's participation in one race. Pgm holds the normalized
// program number; ProgramNumber keeps the raw form from the first feed.
type Entry struct {
	bun.BaseModel `bun:"table:entries,alias:e"`

	EntryID       int64               `bun:"entry_id,pk,autoincrement" json:"entryID"`
	RaceID        int64               `bun:"race_id,notnull" json:"raceID"`
	HorseID       int64               `bun:"horse_id,notnull" json:"horseID"`
	JockeyID      *int64              `bun:"jockey_id" json:"jockeyID,omitempty"`
	TrainerID     *int64              `bun:"trainer_id" json:"trainerID,omitempty"`
	ProgramNumber string              `bun:"program_number,notnull" json:"programNumber"`
	Pgm           string              `bun:"pgm,notnull" json:"pgm"`
	Finish        *int                `bun:"finish" json:"finish,omitempty"`
	Scratched     bool                `bun:"scratched,notnull,default:false" json:"scratched"`
	WinPayout     decimal.NullDecimal `bun:"win_payout,type:numeric(12,2)" json:"winPayout"`
	PlacePayout   decimal.NullDecimal `bun:"place_payout,type:numeric(12,2)" json:"placePayout"`
	ShowPayout    decimal.NullDecimal `bun:"show_payout,type:numeric(12,2)" json:"showPayout"`
	Odds          *string             `bun:"odds" json:"odds,omitempty"`
	Comment       *string             `bun:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	Horse *Horse `bun:"rel:belongs-to,join:horse_id=horse_id" json:"-"`
}

// PopulatedFields counts the optional attributes that carry data.
func (e *Entry) PopulatedFields() int {
	n := 0
	if e.JockeyID != nil {
		n++
	}
	if e.TrainerID != nil {
		n++
	}
	if e.Finish != nil {
		n++
	}
	if e.WinPayout.Valid {
		n++
	}
	if e.PlacePayout.Valid {
		n++
	}
	if e.ShowPayout.Valid {
		n++
	}
	if e.Odds != nil && *e.Odds != "" {
		n++
	}
	if e.Comment != nil && *e.Comment != "" {
		n++
	}
	return n
}
