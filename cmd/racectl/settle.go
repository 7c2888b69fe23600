package main

import (
	"github.com/spf13/cobra"

	"github.com/padraicbc/mikebet/settlement"
)

func newSettleCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle pending wagers against reconciled results",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if watch {
				settlement.NewProcessor(a.settler, a.cfg.SettleInterval, a.log).Start(ctx)
				return ctx.Err()
			}
			sum, err := a.settler.SettlePending(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sum)
		}),
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "settle every SETTLE_INTERVAL until interrupted")
	return cmd
}
