package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an API user with bcrypt-hashed password. Each user owns one wallet.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Username  string    `bun:"username,notnull,unique" json:"username"`
	Password  string    `bun:"password,notnull" json:"-"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`

	Wallet *Wallet `bun:"rel:has-one,join:id=user_id" json:"wallet,omitempty"`
}
