package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/ledger"
)

func newAuditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check every wallet balance against its transaction history",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			ids, err := a.wallets.WalletIDs(ctx)
			if err != nil {
				return err
			}
			var drift int
			for _, id := range ids {
				err := ledger.Verify(ctx, a.wallets, id)
				switch {
				case err == nil:
				case errors.Is(err, ledger.ErrBalanceDrift):
					drift++
					a.log.Error("wallet drift", zap.Int64("wallet_id", id), zap.Error(err))
					fmt.Fprintln(cmd.OutOrStdout(), err)
				default:
					return err
				}
			}
			a.log.Info("audit finished", zap.Int("wallets", len(ids)), zap.Int("drift", drift))
			if drift > 0 {
				return fmt.Errorf("%d of %d wallets drifted", drift, len(ids))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d wallets balanced\n", len(ids))
			return nil
		}),
	}
}
