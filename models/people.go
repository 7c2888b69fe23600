package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Horse is a racehorse, globally unique by normalized name.
type Horse struct {
	bun.BaseModel `bun:"table:horses,alias:h"`

	HorseID   int64     `bun:"horse_id,pk,autoincrement" json:"horseID"`
	Name      string    `bun:"name,notnull" json:"name"`
	NameKey   string    `bun:"name_key,notnull,unique" json:"-"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Jockey holds a rider name.
type Jockey struct {
	bun.BaseModel `bun:"table:jockeys,alias:j"`

	JockeyID  int64     `bun:"jockey_id,pk,autoincrement" json:"jockeyID"`
	Name      string    `bun:"name,notnull" json:"name"`
	NameKey   string    `bun:"name_key,notnull,unique" json:"-"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Trainer holds trainer name and notes.
type Trainer struct {
	bun.BaseModel `bun:"table:trainers,alias:t"`

	TrainerID int64     `bun:"trainer_id,pk,autoincrement" json:"trainerID"`
	Name      string    `bun:"name,notnull" json:"name"`
	NameKey   string    `bun:"name_key,notnull,unique" json:"-"`
	Info      *string   `bun:"info" json:"info,omitempty"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// PersonKind selects which named-entity table a lookup targets.
type PersonKind string

const (
	KindJockey  PersonKind = "jockey"
	KindTrainer PersonKind = "trainer"
)
