package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/padraicbc/mikebet/cycle"
	"github.com/padraicbc/mikebet/feed"
)

func openStaging(ctx context.Context, a *app) (*feed.MySQLStaging, error) {
	if a.cfg.MySQLDSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is not set")
	}
	return feed.OpenMySQLStaging(ctx, a.cfg.MySQLDSN, a.cfg.StagingBatch)
}

func newRunner(a *app, src cycle.Source) *cycle.Runner {
	return cycle.New(src, a.reconciler, a.settler, cycle.Options{
		Interval:     a.cfg.CycleInterval,
		TrackWorkers: a.cfg.TrackWorkers,
		OpTimeout:    a.cfg.OpTimeout,
		Attempts:     a.cfg.RetryAttempts,
		Backoff:      a.cfg.RetryBackoff,
	}, a.log)
}

func newCycleCommand() *cobra.Command {
	var (
		file  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Pull staged feed races, reconcile them and settle wagers",
		Long: "Runs one pipeline cycle against the MySQL staging tables, or against a\n" +
			"JSON document with --file. --watch keeps cycling on CYCLE_INTERVAL.",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()

			var src cycle.Source
			if file != "" {
				batch, err := decodeFile(file)
				if err != nil {
					return err
				}
				reportIssues(a, batch)
				src = feed.NewStatic(batch)
			} else {
				staging, err := openStaging(ctx, a)
				if err != nil {
					return err
				}
				defer staging.Close()
				src = staging
			}

			r := newRunner(a, src)
			if watch {
				r.Start(ctx)
				return ctx.Err()
			}
			res, err := r.RunOnce(ctx)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			return errors.Join(res.PullErr, res.SettleErr)
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read races from a JSON document instead of MySQL staging (- for stdin)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running cycles until interrupted")
	return cmd
}

func openInput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}
