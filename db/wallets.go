package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/padraicbc/mikebet/ledger"
	"github.com/padraicbc/mikebet/models"
)

// Ledger returns the ledger store backed by idb, which may be a transaction.
func Ledger(idb bun.IDB) ledger.Store {
	return ledgerStore{idb: idb}
}

// incrementBalanceSQL adds ?0 to wallet ?1 in one statement.
const incrementBalanceSQL = `UPDATE wallets SET balance = balance + ?, version = version + 1 WHERE wallet_id = ? RETURNING balance`

type ledgerStore struct {
	idb bun.IDB
}

func (s ledgerStore) IncrementBalance(ctx context.Context, walletID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.idb.NewRaw(incrementBalanceSQL, delta, walletID).Scan(ctx, &balance)
	return balance, err
}

func (s ledgerStore) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := s.idb.NewInsert().Model(tx).Returning("tx_id, created_at").Exec(ctx)
	return err
}

// Wallets answers wallet queries and the balance audit.
type Wallets struct {
	db *bun.DB
}

// NewWallets returns a Wallets over db.
func NewWallets(db *bun.DB) *Wallets {
	return &Wallets{db: db}
}

// ForUser returns the wallet owned by userID, or nil.
func (w *Wallets) ForUser(ctx context.Context, userID int64) (*models.Wallet, error) {
	wallet := new(models.Wallet)
	ok, err := one(ctx, w.db.NewSelect().Model(wallet).Where("user_id = ?", userID))
	if !ok {
		return nil, err
	}
	return wallet, nil
}

// Transactions returns a wallet's history, newest first. beforeID pages
// backwards when non-zero.
func (w *Wallets) Transactions(ctx context.Context, walletID int64, beforeID int64, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := w.db.NewSelect().Model(&txs).
		Where("wallet_id = ?", walletID).
		OrderExpr("tx_id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("tx_id < ?", beforeID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return txs, nil
}

// WalletIDs lists every wallet for a full audit.
func (w *Wallets) WalletIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := w.db.NewSelect().Model((*models.Wallet)(nil)).Column("wallet_id").Order("wallet_id").Scan(ctx, &ids)
	return ids, err
}

func (w *Wallets) WalletBalance(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := w.db.NewSelect().Model((*models.Wallet)(nil)).Column("balance").Where("wallet_id = ?", walletID).Scan(ctx, &balance)
	return balance, err
}

func (w *Wallets) SumTransactions(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := w.db.NewSelect().Model((*models.Transaction)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("wallet_id = ?", walletID).
		Scan(ctx, &sum)
	return sum, err
}

// CreateUser inserts or updates a user and makes sure they own a wallet.
func CreateUser(ctx context.Context, db *bun.DB, username, passwordHash string) (*models.User, error) {
	user := &models.User{Username: username, Password: passwordHash}
	err := RunInTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(user).
			On("CONFLICT (username) DO UPDATE SET password = EXCLUDED.password").
			Returning("id, created_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		wallet := &models.Wallet{UserID: user.ID, Balance: decimal.Zero}
		_, err = tx.NewInsert().Model(wallet).On("CONFLICT (user_id) DO NOTHING").Returning("NULL").Exec(ctx)
		if err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Users looks up API users.
type Users struct {
	db *bun.DB
}

// NewUsers returns a Users over db.
func NewUsers(db *bun.DB) *Users {
	return &Users{db: db}
}

// ByName returns the user with username, or nil when there is none.
func (u *Users) ByName(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := u.db.NewSelect().Model(user).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
