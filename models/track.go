package models

import "github.com/uptrace/bun"

// Track represents a racetrack. Name is the display form seen first; NameKey is
// the normalized form used for lookups.
type Track struct {
	bun.BaseModel `bun:"table:tracks,alias:tk"`

	TrackID  int64  `bun:"track_id,pk,autoincrement" json:"trackID"`
	Name     string `bun:"name,notnull" json:"name"`
	NameKey  string `bun:"name_key,notnull,unique" json:"-"`
	Code     string `bun:"code,notnull,default:''" json:"code"`
	Timezone string `bun:"timezone,notnull,default:'UTC'" json:"timezone"`
}
