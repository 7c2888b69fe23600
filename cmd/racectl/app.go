package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/config"
	"github.com/padraicbc/mikebet/db"
	"github.com/padraicbc/mikebet/identity"
	"github.com/padraicbc/mikebet/ledger"
	applog "github.com/padraicbc/mikebet/logger"
	"github.com/padraicbc/mikebet/reconcile"
	"github.com/padraicbc/mikebet/settlement"
)

// app holds what every subcommand opens: config, logger and database, plus
// the services built on top of them.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	flush func()
	db    *bun.DB

	catalog    *db.Catalog
	wallets    *db.Wallets
	wagers     *db.Wagers
	users      *db.Users
	effector   *ledger.Effector
	reconciler *reconcile.Reconciler
	settler    *settlement.Settler
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, flush, err := applog.Install(cfg.Debug)
	if err != nil {
		return nil, err
	}

	bdb, err := db.Setup(ctx, cfg)
	if err != nil {
		flush()
		return nil, err
	}
	if err := db.CreateTables(ctx, bdb); err != nil {
		_ = bdb.Close()
		flush()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		flush:    flush,
		db:       bdb,
		catalog:  db.NewCatalog(bdb),
		wallets:  db.NewWallets(bdb),
		wagers:   db.NewWagers(bdb),
		users:    db.NewUsers(bdb),
		effector: ledger.NewEffector(log),
	}
	a.reconciler = reconcile.New(a.catalog, identity.NewResolver(cfg.MinContainLen, log), log)
	a.settler = settlement.NewSettler(a.wagers, a.effector, cfg.SettleGrace, log)
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	a.flush()
}

// withApp wraps a RunE body with openApp and Close.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
