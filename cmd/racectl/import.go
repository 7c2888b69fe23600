package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/feed"
	"github.com/padraicbc/mikebet/reconcile"
)

func decodeFile(path string) (*feed.Batch, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	batch, err := feed.DecodeRaces(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batch, nil
}

func reportIssues(a *app, b *feed.Batch) {
	for _, i := range b.Rejected {
		a.log.Warn("race rejected", zap.Int("index", i.Index), zap.Stringer("race", i.Key), zap.Error(i.Err))
	}
	for _, i := range b.Dropped {
		a.log.Warn("record dropped", zap.Int("index", i.Index), zap.Stringer("race", i.Key), zap.Error(i.Err))
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Reconcile races from JSON feed documents without settling",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			var (
				reports []*reconcile.Report
				failed  int
			)
			for _, path := range args {
				batch, err := decodeFile(path)
				if err != nil {
					return err
				}
				reportIssues(a, batch)
				for _, imp := range batch.Races {
					if err := ctx.Err(); err != nil {
						return err
					}
					rep, err := a.reconciler.ReconcileRace(ctx, imp)
					if err != nil {
						failed++
						a.log.Error("reconcile race", zap.String("file", path), zap.Stringer("race", imp.Key), zap.Error(err))
						continue
					}
					reports = append(reports, rep)
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d races failed to reconcile", failed)
			}
			return nil
		}),
	}
}
