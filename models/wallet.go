package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Wallet is a user's running balance. Version increments on every balance write.
type Wallet struct {
	bun.BaseModel `bun:"table:wallets,alias:wl"`

	WalletID int64           `bun:"wallet_id,pk,autoincrement" json:"walletID"`
	UserID   int64           `bun:"user_id,notnull,unique" json:"userID"`
	Balance  decimal.Decimal `bun:"balance,notnull,type:numeric(12,2),default:0" json:"balance"`
	Version  int64           `bun:"version,notnull,default:0" json:"version"`
}

// TxKind tags a ledger transaction.
type TxKind string

const (
	TxPayout     TxKind = "Payout"
	TxRefund     TxKind = "Refund"
	TxStake      TxKind = "Stake"
	TxDeposit    TxKind = "Deposit"
	TxAdjustment TxKind = "Adjustment"
)

// Transaction is an append-only ledger row. IdemKey is unique so a replayed
// posting cannot land twice.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions,alias:tx"`

	TxID      int64           `bun:"tx_id,pk,autoincrement" json:"txID"`
	WalletID  int64           `bun:"wallet_id,notnull" json:"walletID"`
	WagerID   *int64          `bun:"wager_id" json:"wagerID,omitempty"`
	ClaimID   *int64          `bun:"claim_id" json:"claimID,omitempty"`
	Kind      TxKind          `bun:"kind,notnull" json:"kind"`
	Amount    decimal.Decimal `bun:"amount,notnull,type:numeric(12,2)" json:"amount"`
	IdemKey   uuid.UUID       `bun:"idem_key,notnull,unique,type:uuid" json:"idemKey"`
	Memo      string          `bun:"memo,notnull,default:''" json:"memo,omitempty"`
	CreatedAt time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}
