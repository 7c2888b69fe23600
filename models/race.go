package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// RaceStatus is the lifecycle state of a race.
type RaceStatus string

const (
	RaceUpcoming       RaceStatus = "upcoming"
	RacePartiallyKnown RaceStatus = "partially-known"
	RaceCompleted      RaceStatus = "completed"
	RaceCancelled      RaceStatus = "cancelled"
)

func (s RaceStatus) rank() int {
	switch s {
	case RaceUpcoming:
		return 0
	case RacePartiallyKnown:
		return 1
	case RaceCompleted:
		return 2
	case RaceCancelled:
		return 3
	}
	return -1
}

// Valid reports whether s is a known status.
func (s RaceStatus) Valid() bool { return s.rank() >= 0 }

// CanAdvance reports whether the automatic pipeline may move a race from s to
// next. Moves are forward only; a completed race is never cancelled and a
// cancelled race only comes back through an operator reopen.
func (s RaceStatus) CanAdvance(next RaceStatus) bool {
	if !next.Valid() || s == next {
		return false
	}
	switch s {
	case RaceCancelled, RaceCompleted:
		return false
	}
	return next.rank() > s.rank()
}

// Race represents a single race, unique by (track, date, number).
type Race struct {
	bun.BaseModel `bun:"table:races,alias:rc"`

	RaceID       int64               `bun:"race_id,pk,autoincrement" json:"raceID"`
	TrackID      int64               `bun:"track_id,notnull,unique:races_no_dupes" json:"trackID"`
	Date         string              `bun:"date,notnull,type:date,unique:races_no_dupes" json:"date"`
	Number       int                 `bun:"number,notnull,unique:races_no_dupes" json:"number"`
	Status       RaceStatus          `bun:"status,notnull,default:'upcoming'" json:"status"`
	Cancelled    bool                `bun:"cancelled,notnull,default:false" json:"cancelled"`
	CancelReason *string             `bun:"cancel_reason" json:"cancelReason,omitempty"`
	PostTime     *string             `bun:"post_time" json:"postTime,omitempty"`
	Distance     *float64            `bun:"distance" json:"distance,omitempty"`
	Surface      *string             `bun:"surface" json:"surface,omitempty"`
	Purse        decimal.NullDecimal `bun:"purse,type:numeric(12,2)" json:"purse"`
	CreatedAt    time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	Track *Track `bun:"rel:belongs-to,join:track_id=track_id" json:"track,omitempty"`
}

var _ bun.AfterScanRowHook = (*Race)(nil)

// AfterScanRow trims a date column scanned as a timestamp back to YYYY-MM-DD.
func (r *Race) AfterScanRow(context.Context) error {
	if len(r.Date) > len(time.DateOnly) {
		r.Date = r.Date[:len(time.DateOnly)]
	}
	return nil
}

// Completed reports whether finishing data for the race is authoritative.
func (r *Race) Completed() bool {
	return r.Status == RaceCompleted
}

// RaceDay parses the race date as midnight UTC.
func (r *Race) RaceDay() (time.Time, error) {
	return time.Parse(time.DateOnly, r.Date)
}
