package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/padraicbc/mikebet/reconcile"
)

func newReopenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen TRACK DATE NUMBER",
		Short: "Take a cancelled race back to upcoming",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("race number %q: %w", args[2], err)
			}
			key := reconcile.RaceKey{Track: args[0], Date: args[1], Number: n}
			if err := a.reconciler.Reopen(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reopened\n", key)
			return nil
		}),
	}
}

func newCollapseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "collapse RACE_ID",
		Short: "Merge duplicate entries left in one race",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("race id %q: %w", args[0], err)
			}
			rep, err := a.reconciler.CollapseDuplicates(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		}),
	}
}
