package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AuditStore reads what Verify compares.
type AuditStore interface {
	WalletBalance(ctx context.Context, walletID int64) (decimal.Decimal, error)
	SumTransactions(ctx context.Context, walletID int64) (decimal.Decimal, error)
}

// Verify checks that a wallet's balance equals the sum of its transactions.
func Verify(ctx context.Context, s AuditStore, walletID int64) error {
	balance, err := s.WalletBalance(ctx, walletID)
	if err != nil {
		return fmt.Errorf("wallet %d balance: %w", walletID, err)
	}
	sum, err := s.SumTransactions(ctx, walletID)
	if err != nil {
		return fmt.Errorf("wallet %d transactions: %w", walletID, err)
	}
	if !balance.Equal(sum) {
		return fmt.Errorf("%w: wallet %d balance %s, transactions %s",
			ErrBalanceDrift, walletID, balance.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}
