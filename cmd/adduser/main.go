// cmd/adduser/main.go
// Creates or updates a user and their wallet, optionally crediting an
// opening deposit.
//
// Usage:
//
//	go run ./cmd/adduser -username padraic -password testing -deposit 100 -ref opening
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/mikebet/config"
	bundb "github.com/padraicbc/mikebet/db"
	"github.com/padraicbc/mikebet/ledger"
	applog "github.com/padraicbc/mikebet/logger"
	"github.com/padraicbc/mikebet/models"
)

func main() {
	username := flag.String("username", "", "username (required)")
	password := flag.String("password", "", "plain-text password (required)")
	deposit := flag.String("deposit", "", "opening deposit, e.g. 100.00")
	ref := flag.String("ref", "opening", "deposit reference; the same reference never credits twice")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("both -username and -password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("bcrypt:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := bundb.Setup(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	user, err := bundb.CreateUser(ctx, db, *username, string(hash))
	if err != nil {
		log.Fatal("create user:", err)
	}
	fmt.Printf("user %q saved (id %d)\n", *username, user.ID)

	if *deposit == "" {
		return
	}
	amount, err := decimal.NewFromString(*deposit)
	if err != nil {
		log.Fatalf("deposit %q: %v", *deposit, err)
	}
	wallet, err := bundb.NewWallets(db).ForUser(ctx, user.ID)
	if err != nil {
		log.Fatal("wallet:", err)
	}
	if wallet == nil {
		log.Fatalf("user %q has no wallet", *username)
	}

	eff := ledger.NewEffector(logger)
	var balance decimal.Decimal
	err = bundb.RunInTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		balance, err = eff.Credit(ctx, bundb.Ledger(tx), ledger.Posting{
			WalletID: wallet.WalletID,
			Kind:     models.TxDeposit,
			Amount:   amount,
			Memo:     "deposit " + *ref,
			Ref:      *ref,
		})
		return err
	})
	if err != nil {
		log.Fatal("deposit:", err)
	}
	fmt.Printf("wallet %d balance %s\n", wallet.WalletID, balance.StringFixed(2))
}
