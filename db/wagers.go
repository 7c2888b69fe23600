package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/padraicbc/mikebet/ledger"
	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
	"github.com/padraicbc/mikebet/settlement"
)

// Wagers persists wagers and backs the settler.
type Wagers struct {
	db *bun.DB
}

// NewWagers returns a Wagers over db.
func NewWagers(db *bun.DB) *Wagers {
	return &Wagers{db: db}
}

func (w *Wagers) PendingWagers(ctx context.Context) ([]models.Wager, error) {
	var wagers []models.Wager
	err := w.db.NewSelect().Model(&wagers).
		Where("status = ?", models.WagerPending).
		Order("wager_id").
		Scan(ctx)
	return wagers, err
}

func (w *Wagers) RaceCard(ctx context.Context, raceID int64) (*settlement.RaceCard, error) {
	card := new(settlement.RaceCard)
	if err := w.db.NewSelect().Model(&card.Race).Where("race_id = ?", raceID).Scan(ctx); err != nil {
		return nil, err
	}
	if err := w.db.NewSelect().Model(&card.Entries).Where("race_id = ?", raceID).Order("entry_id").Scan(ctx); err != nil {
		return nil, err
	}
	if err := w.db.NewSelect().Model(&card.Exotics).Where("race_id = ?", raceID).Order("id").Scan(ctx); err != nil {
		return nil, err
	}
	return card, nil
}

func (w *Wagers) RunInTx(ctx context.Context, fn func(ctx context.Context, tx settlement.Tx) error) error {
	return RunInTx(ctx, w.db, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, wagerTx{ledgerStore: ledgerStore{idb: tx}, tx: tx})
	})
}

var (
	ErrRaceNotFound  = errors.New("db: race not found")
	ErrRaceClosed    = errors.New("db: race closed to wagering")
	ErrUnknownRunner = errors.New("db: runner not in race")
)

// Place inserts a wager and debits its stake in one transaction. Only
// upcoming races accept wagers, and every selected runner must be entered
// and not scratched.
func (w *Wagers) Place(ctx context.Context, eff *ledger.Effector, wager *models.Wager) error {
	return RunInTx(ctx, w.db, func(ctx context.Context, tx bun.Tx) error {
		race := new(models.Race)
		err := tx.NewSelect().Model(race).Where("race_id = ?", wager.RaceID).For("SHARE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrRaceNotFound, wager.RaceID)
		}
		if err != nil {
			return err
		}
		if race.Status != models.RaceUpcoming || race.Cancelled {
			return fmt.Errorf("%w: race %d is %s", ErrRaceClosed, race.RaceID, race.Status)
		}

		var entries []models.Entry
		if err := tx.NewSelect().Model(&entries).Where("race_id = ?", race.RaceID).Scan(ctx); err != nil {
			return err
		}
		open := map[string]bool{}
		for _, e := range entries {
			if !e.Scratched {
				open[normalize.Pgm(e.Pgm)] = true
			}
		}
		for _, p := range wager.Selected() {
			if !open[normalize.Pgm(p)] {
				return fmt.Errorf("%w: #%s", ErrUnknownRunner, normalize.Pgm(p))
			}
		}

		wager.Status = models.WagerPending
		wager.Payout = decimal.NullDecimal{}
		if _, err := tx.NewInsert().Model(wager).Returning("wager_id, created_at").Exec(ctx); err != nil {
			return err
		}
		walletID, err := walletIDForUser(ctx, tx, wager.UserID)
		if err != nil {
			return err
		}
		wagerID := wager.WagerID
		_, err = eff.Debit(ctx, Ledger(tx), ledger.Posting{
			WalletID: walletID,
			WagerID:  &wagerID,
			Kind:     models.TxStake,
			Amount:   wager.Stake,
			Memo:     string(wager.Type),
		})
		return err
	})
}

// ForUser lists a user's wagers, newest first.
func (w *Wagers) ForUser(ctx context.Context, userID int64, limit int) ([]models.Wager, error) {
	var wagers []models.Wager
	err := w.db.NewSelect().Model(&wagers).
		Where("user_id = ?", userID).
		OrderExpr("wager_id DESC").
		Limit(limit).
		Scan(ctx)
	return wagers, err
}

type wagerTx struct {
	ledgerStore
	tx bun.Tx
}

func (t wagerTx) MarkSettled(ctx context.Context, wagerID int64, status models.WagerStatus, payout decimal.Decimal, at time.Time) (bool, error) {
	res, err := markSettledQuery(t.tx, wagerID, status, payout, at).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// markSettledQuery only matches a wager that is still Pending.
func markSettledQuery(idb bun.IDB, wagerID int64, status models.WagerStatus, payout decimal.Decimal, at time.Time) *bun.UpdateQuery {
	return idb.NewUpdate().Model((*models.Wager)(nil)).
		Set("status = ?", status).
		Set("payout = ?", payout).
		Set("settled_at = ?", at).
		Where("wager_id = ?", wagerID).
		Where("status = ?", models.WagerPending)
}

func (t wagerTx) WalletIDForUser(ctx context.Context, userID int64) (int64, error) {
	return walletIDForUser(ctx, t.tx, userID)
}

func walletIDForUser(ctx context.Context, idb bun.IDB, userID int64) (int64, error) {
	var id int64
	err := idb.NewSelect().Model((*models.Wallet)(nil)).Column("wallet_id").Where("user_id = ?", userID).Scan(ctx, &id)
	return id, err
}
