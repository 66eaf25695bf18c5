package main

import (
	"fmt"
	"io"

	"episweep/domain/core"
	"episweep/domain/sweep"
	"episweep/internal/container"
	"episweep/internal/errors"

	"github.com/spf13/cobra"
)

func newCellsCmd(a *cli) *cobra.Command {
	var sweepID, status, ledgerDSN string

	cmd := &cobra.Command{
		Use:   "cells",
		Short: "List the cell outcomes a sweep recorded in the ledger",
		Long: `List the outcomes recorded for one sweep invocation, optionally filtered
by status. The sweep ID is printed when a sweep starts.

Example: episweep cells --sweep 0190f3c2-... --status failed --ledger sqlite://ledger.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := container.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)
			if err := c.InitLedger(ctx, ledgerDSN); err != nil {
				return err
			}
			if c.Ledger == nil {
				return errors.ConfigInvalid("no ledger: pass --ledger or set EPISWEEP_LEDGER_DSN")
			}

			var records []sweep.CellRecord
			if status != "" {
				st, err := sweep.ParseCellStatus(status)
				if err != nil {
					return errors.Wrap(err, "invalid --status")
				}
				records, err = c.Ledger.ListCellsByStatus(ctx, core.ID(sweepID), st)
				if err != nil {
					return errors.Wrap(err, "failed to read ledger")
				}
			} else {
				records, err = c.Ledger.ListCells(ctx, core.ID(sweepID))
				if err != nil {
					return errors.Wrap(err, "failed to read ledger")
				}
			}
			printCellRecords(cmd.OutOrStdout(), sweepID, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&sweepID, "sweep", "", "Sweep ID")
	cmd.Flags().StringVar(&status, "status", "", "Only cells with this status (executed, skipped, failed)")
	cmd.Flags().StringVar(&ledgerDSN, "ledger", "", "Ledger DSN (postgres:// or sqlite://); default EPISWEEP_LEDGER_DSN")
	cmd.MarkFlagRequired("sweep")

	return cmd
}

func printCellRecords(w io.Writer, sweepID string, records []sweep.CellRecord) {
	fmt.Fprintf(w, "Sweep %s: %d cells\n", sweepID, len(records))
	for _, rec := range records {
		if rec.Status == sweep.CellFailed {
			fmt.Fprintf(w, "  %-24s %-8s [%s] %s\n", rec.Key(), rec.Status, rec.ErrorKind, rec.Error)
			continue
		}
		fmt.Fprintf(w, "  %-24s %-8s %s\n", rec.Key(), rec.Status, rec.Duration)
	}
}
