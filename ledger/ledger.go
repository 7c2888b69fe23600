// Package ledger applies balance changes to wallets. Every change is an atomic
// increment paired with an append-only transaction row.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/models"
)

var (
	// ErrAuditTrail means the balance moved but its transaction row was not
	// written. Reported as an anomaly; the balance itself is correct.
	ErrAuditTrail = errors.New("ledger: transaction record not written")
	// ErrBalanceDrift means a wallet balance differs from the sum of its transactions.
	ErrBalanceDrift = errors.New("ledger: balance drift")
	// ErrInvalidAmount rejects zero or wrongly signed postings.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrInsufficientFunds rejects a debit larger than the balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// Store is the persistence a posting needs. IncrementBalance must be a single
// atomic read-modify-write (balance = balance + delta) and return the new
// balance.
type Store interface {
	IncrementBalance(ctx context.Context, walletID int64, delta decimal.Decimal) (decimal.Decimal, error)
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
}

// Posting describes one balance change.
type Posting struct {
	WalletID int64
	WagerID  *int64
	ClaimID  *int64
	Kind     models.TxKind
	Amount   decimal.Decimal
	Memo     string
	// Ref makes the idempotency key unique when there is no wager or claim,
	// e.g. a deposit reference. A wager put back to Pending by hand settles
	// under the same key unless Ref carries a reset counter.
	Ref string
}

// idemNamespace scopes transaction idempotency keys.
var idemNamespace = uuid.MustParse("5b0c6c1e-7d0a-4c43-9a57-2f5f6c0a9e11")

// IdemKey derives the deterministic key of a posting.
func (p Posting) IdemKey() uuid.UUID {
	name := fmt.Sprintf("%s:%d", p.Kind, p.WalletID)
	switch {
	case p.WagerID != nil:
		name += fmt.Sprintf(":wager:%d", *p.WagerID)
	case p.ClaimID != nil:
		name += fmt.Sprintf(":claim:%d", *p.ClaimID)
	}
	if p.Ref != "" {
		name += ":" + p.Ref
	}
	return uuid.NewSHA1(idemNamespace, []byte(name))
}

// Effector applies postings.
type Effector struct {
	log *zap.Logger
}

// NewEffector returns an Effector logging through log.
func NewEffector(log *zap.Logger) *Effector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Effector{log: log.With(zap.String("component", "ledger"))}
}

// Credit adds a positive amount (payouts, refunds, deposits).
func (e *Effector) Credit(ctx context.Context, s Store, p Posting) (decimal.Decimal, error) {
	if !p.Amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: credit of %s", ErrInvalidAmount, p.Amount)
	}
	return e.apply(ctx, s, p)
}

// Debit removes a positive amount (stakes). The resulting balance may not go negative.
func (e *Effector) Debit(ctx context.Context, s Store, p Posting) (decimal.Decimal, error) {
	if !p.Amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: debit of %s", ErrInvalidAmount, p.Amount)
	}
	p.Amount = p.Amount.Neg()
	return e.apply(ctx, s, p)
}

// Adjust is the manual correction path. The amount may have either sign but
// still lands in the transaction log.
func (e *Effector) Adjust(ctx context.Context, s Store, walletID int64, amount decimal.Decimal, memo string) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero adjustment", ErrInvalidAmount)
	}
	e.log.Warn("manual wallet adjustment",
		zap.Int64("wallet_id", walletID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("memo", memo),
	)
	return e.apply(ctx, s, Posting{
		WalletID: walletID,
		Kind:     models.TxAdjustment,
		Amount:   amount,
		Memo:     memo,
		Ref:      uuid.NewString(),
	})
}

func (e *Effector) apply(ctx context.Context, s Store, p Posting) (decimal.Decimal, error) {
	balance, err := s.IncrementBalance(ctx, p.WalletID, p.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("increment wallet %d: %w", p.WalletID, err)
	}
	if balance.IsNegative() && p.Kind == models.TxStake {
		return balance, fmt.Errorf("%w: wallet %d", ErrInsufficientFunds, p.WalletID)
	}

	tx := &models.Transaction{
		WalletID: p.WalletID,
		WagerID:  p.WagerID,
		ClaimID:  p.ClaimID,
		Kind:     p.Kind,
		Amount:   p.Amount,
		IdemKey:  p.IdemKey(),
		Memo:     p.Memo,
	}
	if err := s.AppendTransaction(ctx, tx); err != nil {
		fields := []zap.Field{
			zap.Int64("wallet_id", p.WalletID),
			zap.String("kind", string(p.Kind)),
			zap.String("amount", p.Amount.StringFixed(2)),
			zap.String("balance", balance.StringFixed(2)),
			zap.Error(err),
		}
		if p.WagerID != nil {
			fields = append(fields, zap.Int64("wager_id", *p.WagerID))
		}
		e.log.Error("ledger anomaly: balance updated without transaction record", fields...)
		return balance, fmt.Errorf("%w: %v", ErrAuditTrail, err)
	}

	e.log.Debug("posted",
		zap.Int64("wallet_id", p.WalletID),
		zap.String("kind", string(p.Kind)),
		zap.String("amount", p.Amount.StringFixed(2)),
		zap.String("balance", balance.StringFixed(2)),
	)
	return balance, nil
}
