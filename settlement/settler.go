// Package settlement resolves pending wagers against reconciled race results
// and credits winnings through the ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/ledger"
	"github.com/padraicbc/mikebet/models"
)

// ErrAlreadySettled means another run moved the wager out of Pending first.
var ErrAlreadySettled = errors.New("settlement: wager already settled")

// Store reads the settlement inputs and opens write units.
type Store interface {
	PendingWagers(ctx context.Context) ([]models.Wager, error)
	RaceCard(ctx context.Context, raceID int64) (*RaceCard, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is one settlement write unit: the status transition plus its credit.
type Tx interface {
	ledger.Store
	// MarkSettled moves a wager out of Pending. It reports false when the
	// wager was no longer Pending.
	MarkSettled(ctx context.Context, wagerID int64, status models.WagerStatus, payout decimal.Decimal, at time.Time) (bool, error)
	WalletIDForUser(ctx context.Context, userID int64) (int64, error)
}

// Summary counts one settlement pass.
type Summary struct {
	Scanned   int             `json:"scanned"`
	Won       int             `json:"won"`
	Lost      int             `json:"lost"`
	Returned  int             `json:"returned"`
	Swept     int             `json:"swept"`
	Pending   int             `json:"pending"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Anomalies int             `json:"anomalies"`
	Paid      decimal.Decimal `json:"paid"`
}

func (s *Summary) fields() []zap.Field {
	return []zap.Field{
		zap.Int("scanned", s.Scanned),
		zap.Int("won", s.Won),
		zap.Int("lost", s.Lost),
		zap.Int("returned", s.Returned),
		zap.Int("swept", s.Swept),
		zap.Int("pending", s.Pending),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("anomalies", s.Anomalies),
		zap.String("paid", s.Paid.StringFixed(2)),
	}
}

// Settler runs settlement passes.
type Settler struct {
	store    Store
	effector *ledger.Effector
	log      *zap.Logger
	grace    time.Duration
	now      func() time.Time
}

// NewSettler creates a Settler. A zero grace uses DefaultGrace.
func NewSettler(store Store, effector *ledger.Effector, grace time.Duration, log *zap.Logger) *Settler {
	if log == nil {
		log = zap.NewNop()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Settler{
		store:    store,
		effector: effector,
		log:      log.With(zap.String("component", "settler")),
		grace:    grace,
		now:      time.Now,
	}
}

// SettlePending evaluates every pending wager once. Wagers still pending after
// the result rules go through the stale sweep. A failure on one wager is
// logged and counted; the pass carries on with the rest. Cancelling ctx stops
// the pass between wagers.
func (s *Settler) SettlePending(ctx context.Context) (*Summary, error) {
	wagers, err := s.store.PendingWagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending wagers: %w", err)
	}

	sum := &Summary{Scanned: len(wagers), Paid: decimal.Zero}
	cards := make(map[int64]cardLoad)
	now := s.now()

	for i := range wagers {
		if err := ctx.Err(); err != nil {
			s.log.Warn("settlement pass interrupted", sum.fields()...)
			return sum, err
		}
		w := &wagers[i]
		log := s.log.With(zap.Int64("wager_id", w.WagerID), zap.Int64("race_id", w.RaceID))

		card, err := s.card(ctx, cards, w.RaceID)
		if err != nil {
			log.Error("load race card", zap.Error(err))
			sum.Failed++
			continue
		}

		d, err := Evaluate(w, card)
		if err != nil {
			log.Error("evaluate wager", zap.Error(err))
			sum.Failed++
			continue
		}
		if d.Status == models.WagerPending {
			d, err = Sweep(w, card, now, s.grace)
			if err != nil {
				log.Error("sweep wager", zap.Error(err))
				sum.Failed++
				continue
			}
			if d.Status == models.WagerPending {
				sum.Pending++
				continue
			}
			sum.Swept++
		}

		s.commit(ctx, log, w, d, now, sum)
	}

	s.log.Info("settlement pass done", sum.fields()...)
	return sum, nil
}

type cardLoad struct {
	card *RaceCard
	err  error
}

// card loads each race at most once per pass; a failed load is remembered
// so the remaining wagers on that race fail without another round trip.
func (s *Settler) card(ctx context.Context, cache map[int64]cardLoad, raceID int64) (*RaceCard, error) {
	if l, ok := cache[raceID]; ok {
		return l.card, l.err
	}
	c, err := s.store.RaceCard(ctx, raceID)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	cache[raceID] = cardLoad{card: c, err: err}
	return c, err
}

func (s *Settler) commit(ctx context.Context, log *zap.Logger, w *models.Wager, d Decision, now time.Time, sum *Summary) {
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.MarkSettled(ctx, w.WagerID, d.Status, d.Payout, now)
		if err != nil {
			return fmt.Errorf("mark settled: %w", err)
		}
		if !ok {
			return ErrAlreadySettled
		}
		if !d.Payout.IsPositive() || (d.Status != models.WagerWin && d.Status != models.WagerReturned) {
			return nil
		}

		walletID, err := tx.WalletIDForUser(ctx, w.UserID)
		if err != nil {
			return fmt.Errorf("wallet for user %d: %w", w.UserID, err)
		}
		kind := models.TxPayout
		if d.Status == models.WagerReturned {
			kind = models.TxRefund
		}
		wagerID := w.WagerID
		_, err = s.effector.Credit(ctx, tx, ledger.Posting{
			WalletID: walletID,
			WagerID:  &wagerID,
			Kind:     kind,
			Amount:   d.Payout,
			Memo:     d.Reason,
		})
		return err
	})

	switch {
	case errors.Is(err, ErrAlreadySettled):
		log.Info("wager already settled elsewhere")
		sum.Skipped++
		return
	case errors.Is(err, ledger.ErrAuditTrail):
		sum.Anomalies++
		sum.Failed++
		return
	case err != nil:
		log.Error("settle wager", zap.Error(err))
		sum.Failed++
		return
	}

	switch d.Status {
	case models.WagerWin:
		sum.Won++
	case models.WagerLoss:
		sum.Lost++
	case models.WagerReturned:
		sum.Returned++
	}
	if d.Status == models.WagerWin || d.Status == models.WagerReturned {
		sum.Paid = sum.Paid.Add(d.Payout)
	}
	log.Info("wager settled",
		zap.String("status", string(d.Status)),
		zap.String("payout", d.Payout.StringFixed(2)),
		zap.String("reason", d.Reason),
	)
}
