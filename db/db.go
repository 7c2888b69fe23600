// Package db is the bun/PostgreSQL persistence layer. It implements the
// repository interfaces of reconcile, settlement and ledger.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/config"
	"github.com/padraicbc/mikebet/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.PostgresDSN()),
		pgdriver.WithTimeout(cfg.OpTimeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*models.User)(nil),
		(*models.Wallet)(nil),
		(*models.Track)(nil),
		(*models.Horse)(nil),
		(*models.Jockey)(nil),
		(*models.Trainer)(nil),
		(*models.Race)(nil),
		(*models.Entry)(nil),
		(*models.Change)(nil),
		(*models.Claim)(nil),
		(*models.ExoticPayout)(nil),
		(*models.Wager)(nil),
		(*models.Transaction)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	stmts := []string{
		constraint("wallets_user_fk", "wallets", "FOREIGN KEY (user_id) REFERENCES users (id)"),
		constraint("races_track_fk", "races", "FOREIGN KEY (track_id) REFERENCES tracks (track_id)"),
		constraint("entries_race_fk", "entries", "FOREIGN KEY (race_id) REFERENCES races (race_id)"),
		constraint("entries_horse_fk", "entries", "FOREIGN KEY (horse_id) REFERENCES horses (horse_id)"),
		constraint("wagers_race_fk", "wagers", "FOREIGN KEY (race_id) REFERENCES races (race_id)"),
		constraint("wagers_user_fk", "wagers", "FOREIGN KEY (user_id) REFERENCES users (id)"),
		constraint("transactions_wallet_fk", "transactions", "FOREIGN KEY (wallet_id) REFERENCES wallets (wallet_id)"),
		constraint("wagers_stake_positive", "wagers", "CHECK (stake > 0)"),
		`CREATE INDEX IF NOT EXISTS entries_race_pgm_idx ON entries (race_id, pgm)`,
		`CREATE INDEX IF NOT EXISTS wagers_pending_idx ON wagers (race_id) WHERE status = 'Pending'`,
		`CREATE INDEX IF NOT EXISTS transactions_wallet_idx ON transactions (wallet_id, created_at)`,
	}
	log := zap.L()
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Warn("schema statement failed", zap.String("sql", stmt), zap.Error(err))
		}
	}

	return nil
}

func constraint(name, table, def string) string {
	return fmt.Sprintf(
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN ALTER TABLE %s ADD CONSTRAINT %s %s; END IF; END $$`,
		name, table, name, def,
	)
}

// RunInTx runs fn inside a transaction, committing when it returns nil.
func RunInTx(ctx context.Context, db *bun.DB, fn func(ctx context.Context, tx bun.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
