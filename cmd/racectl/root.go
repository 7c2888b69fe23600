package main

import "github.com/spf13/cobra"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "racectl",
		Short:         "Race identity reconciliation and wager settlement",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newCycleCommand(),
		newImportCommand(),
		newSettleCommand(),
		newAuditCommand(),
		newReopenCommand(),
		newCollapseCommand(),
	)
	return root
}
