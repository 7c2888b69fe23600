package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// WagerStatus is the settlement state of a wager. Everything but Pending is terminal.
type WagerStatus string

const (
	WagerPending   WagerStatus = "Pending"
	WagerWin       WagerStatus = "Win"
	WagerLoss      WagerStatus = "Loss"
	WagerScratched WagerStatus = "Scratched"
	WagerReturned  WagerStatus = "Returned"
)

// Terminal reports whether s is a final status.
func (s WagerStatus) Terminal() bool {
	switch s {
	case WagerWin, WagerLoss, WagerScratched, WagerReturned:
		return true
	}
	return false
}

// WagerType is the bet type.
type WagerType string

const (
	BetWin         WagerType = "WIN"
	BetPlace       WagerType = "PLACE"
	BetShow        WagerType = "SHOW"
	BetWP          WagerType = "WP"
	BetPS          WagerType = "PS"
	BetWPS         WagerType = "WPS"
	BetExacta      WagerType = "EXACTA"
	BetTrifecta    WagerType = "TRIFECTA"
	BetExactaBox   WagerType = "EXACTA_BOX"
	BetTrifectaBox WagerType = "TRIFECTA_BOX"
	BetExactaKey   WagerType = "EXACTA_KEY"
	BetTrifectaKey WagerType = "TRIFECTA_KEY"
)

// Position is a single-horse bet component.
type Position int

const (
	PosWin   Position = 1
	PosPlace Position = 2
	PosShow  Position = 3
)

// Positions returns the win/place/show components of a single-horse bet, or
// nil for combination bets.
func (t WagerType) Positions() []Position {
	switch t {
	case BetWin:
		return []Position{PosWin}
	case BetPlace:
		return []Position{PosPlace}
	case BetShow:
		return []Position{PosShow}
	case BetWP:
		return []Position{PosWin, PosPlace}
	case BetPS:
		return []Position{PosPlace, PosShow}
	case BetWPS:
		return []Position{PosWin, PosPlace, PosShow}
	}
	return nil
}

// Depth is how many finishers a combination bet covers (2 or 3), 0 otherwise.
func (t WagerType) Depth() int {
	switch t {
	case BetExacta, BetExactaBox, BetExactaKey:
		return 2
	case BetTrifecta, BetTrifectaBox, BetTrifectaKey:
		return 3
	}
	return 0
}

// Boxed reports whether finishing order within the combination is irrelevant.
func (t WagerType) Boxed() bool {
	return t == BetExactaBox || t == BetTrifectaBox
}

// Label is the published payout label a combination bet is paid from.
func (t WagerType) Label() string {
	switch t.Depth() {
	case 2:
		return "Exacta"
	case 3:
		return "Trifecta"
	}
	return ""
}

// Valid reports whether t is a known bet type.
func (t WagerType) Valid() bool {
	return len(t.Positions()) > 0 || t.Depth() > 0
}

// Wager is a user bet on one race. Legs holds the selection: one slot for
// single-horse and box bets, one slot per finishing position for straight and
// key bets. Each slot lists raw program numbers.
type Wager struct {
	bun.BaseModel `bun:"table:wagers,alias:w"`

	WagerID   int64               `bun:"wager_id,pk,autoincrement" json:"wagerID"`
	UserID    int64               `bun:"user_id,notnull" json:"userID"`
	RaceID    int64               `bun:"race_id,notnull" json:"raceID"`
	Type      WagerType           `bun:"wager_type,notnull" json:"wagerType"`
	Legs      [][]string          `bun:"legs,notnull,type:jsonb" json:"legs"`
	Stake     decimal.Decimal     `bun:"stake,notnull,type:numeric(12,2)" json:"stake"`
	Status    WagerStatus         `bun:"status,notnull,default:'Pending'" json:"status"`
	Payout    decimal.NullDecimal `bun:"payout,type:numeric(12,2)" json:"payout"`
	SettledAt *time.Time          `bun:"settled_at" json:"settledAt,omitempty"`
	CreatedAt time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Selected returns every program number named anywhere in the selection.
func (w *Wager) Selected() []string {
	var out []string
	for _, leg := range w.Legs {
		out = append(out, leg...)
	}
	return out
}
