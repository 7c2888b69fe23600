package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ChangeType classifies a late modification.
type ChangeType string

const (
	ChangeScratch      ChangeType = "Scratch"
	ChangeJockey       ChangeType = "Jockey"
	ChangeEquipment    ChangeType = "Equipment"
	ChangeWeight       ChangeType = "Weight"
	ChangeCancellation ChangeType = "Cancellation"
	ChangeOther        ChangeType = "Other"
)

// Change is an audit record of a late modification. EntryID is 0 for
// race-wide events so the unique key stays comparable.
type Change struct {
	bun.BaseModel `bun:"table:changes,alias:ch"`

	ChangeID    int64      `bun:"change_id,pk,autoincrement" json:"changeID"`
	RaceID      int64      `bun:"race_id,notnull,unique:changes_no_dupes" json:"raceID"`
	EntryID     int64      `bun:"entry_id,notnull,default:0,unique:changes_no_dupes" json:"entryID"`
	ChangeType  ChangeType `bun:"change_type,notnull,unique:changes_no_dupes" json:"changeType"`
	Description string     `bun:"description,notnull,unique:changes_no_dupes" json:"description"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Claim records a horse changing connections out of a race.
type Claim struct {
	bun.BaseModel `bun:"table:claims,alias:cl"`

	ClaimID    int64               `bun:"claim_id,pk,autoincrement" json:"claimID"`
	RaceID     int64               `bun:"race_id,notnull,unique:claims_no_dupes" json:"raceID"`
	EntryID    int64               `bun:"entry_id,notnull,unique:claims_no_dupes" json:"entryID"`
	Pgm        string              `bun:"pgm,notnull" json:"pgm"`
	NewTrainer string              `bun:"new_trainer,notnull,default:''" json:"newTrainer"`
	NewOwner   string              `bun:"new_owner,notnull,default:''" json:"newOwner"`
	Price      decimal.NullDecimal `bun:"price,type:numeric(12,2)" json:"price"`
}

// ExoticPayout is a published combination payout, quoted per 2 units.
type ExoticPayout struct {
	bun.BaseModel `bun:"table:exotic_payouts,alias:xp"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	RaceID    int64           `bun:"race_id,notnull,unique:exotic_no_dupes" json:"raceID"`
	WagerType string          `bun:"wager_type,notnull,unique:exotic_no_dupes" json:"wagerType"`
	Numbers   string          `bun:"numbers,notnull,unique:exotic_no_dupes" json:"numbers"`
	Payout    decimal.Decimal `bun:"payout,notnull,type:numeric(12,2)" json:"payout"`
}
