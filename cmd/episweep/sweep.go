package main

import (
	"fmt"
	"io"
	"time"

	"episweep/adapters/report"
	"episweep/app"
	"episweep/domain/params"
	"episweep/domain/policy"
	"episweep/domain/sweep"
	"episweep/domain/vaccine"
	"episweep/internal/config"
	"episweep/internal/container"
	"episweep/internal/errors"

	"github.com/spf13/cobra"
)

type sweepOptions struct {
	grid       string
	workers    int
	ledgerDSN  string
	reportPath string
}

func newSweepCmd(a *cli) *cobra.Command {
	opts := sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every cell of a grid, skipping cells already complete",
		Long: `Run the cartesian product of arms, adoption rates, ten_times_r values
and seeds described by a YAML grid file. Completed cells are skipped, so an
interrupted sweep resumes where it stopped. The command exits non-zero when
any cell fails.

Example: episweep sweep --grid grids/figure1.yaml --workers 8 --report results/figure1.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.grid, "grid", "", "Grid YAML file")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent cells (default: grid workers, then EPISWEEP_WORKERS)")
	cmd.Flags().StringVar(&opts.ledgerDSN, "ledger", "", "Ledger DSN (postgres:// or sqlite://); default EPISWEEP_LEDGER_DSN")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write a .md or .html sweep report")
	cmd.MarkFlagRequired("grid")

	return cmd
}

// sweepRequest turns a grid into a request. Arms are resolved up front so a
// typo fails before any cell runs.
func sweepRequest(spec *sweep.GridSpec, workers int) (app.SweepRequest, error) {
	mode, err := policy.ParseAdoptionMode(spec.AdoptionMode)
	if err != nil {
		return app.SweepRequest{}, err
	}
	arms := make(map[string]policy.Arm, len(spec.Arms))
	for _, name := range spec.Arms {
		arm, err := policy.ArmByName(name)
		if err != nil {
			return app.SweepRequest{}, err
		}
		arms[name] = arm
	}
	base, err := policy.Apply(spec.BaseConfiguration(), policy.Merge("grid_overrides", params.New(spec.Overrides)))
	if err != nil {
		return app.SweepRequest{}, err
	}
	req := app.SweepRequest{
		Points:       spec.Grid().Points(),
		Base:         base,
		AdoptionMode: mode,
		Arms:         arms,
		DurationDays: spec.DurationDays,
		Workers:      workers,
	}
	if spec.Vaccinate {
		plan := vaccine.Default()
		req.Vaccination = &plan
	}
	return req, nil
}

func (a *cli) resolveWorkers(flag int, spec *sweep.GridSpec) int {
	switch {
	case flag > 0:
		return flag
	case spec.Workers > 1:
		return spec.Workers
	default:
		return a.cfg.Sweep.Workers
	}
}

func (a *cli) runSweep(cmd *cobra.Command, opts sweepOptions) error {
	ctx := cmd.Context()

	spec, err := config.LoadGrid(opts.grid)
	if err != nil {
		return err
	}
	req, err := sweepRequest(spec, a.resolveWorkers(opts.workers, spec))
	if err != nil {
		return errors.Wrap(err, "invalid grid")
	}

	c, err := container.New(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)
	if err := c.InitLedger(ctx, opts.ledgerDSN); err != nil {
		return err
	}
	store, err := c.Store(spec.OutputPath(a.cfg.Store.OutputDir))
	if err != nil {
		return err
	}

	rep, runErr := c.SweepService(store).RunSweep(ctx, req)
	if rep == nil {
		return errors.Wrap(runErr, "sweep failed")
	}

	printSweepReport(cmd.OutOrStdout(), spec.Name, rep)
	if opts.reportPath != "" {
		summary := report.SweepSummary{
			SweepID:    rep.SweepID,
			GridName:   spec.Name,
			Records:    rep.Records,
			NotStarted: rep.NotStarted,
			Runtime:    time.Duration(rep.RuntimeMs) * time.Millisecond,
		}
		if err := report.WriteFile(opts.reportPath, summary); err != nil {
			return errors.Wrap(err, "failed to write report")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", opts.reportPath)
	}

	if runErr != nil {
		return errors.Wrap(runErr, "sweep interrupted")
	}
	if len(rep.Failed) > 0 {
		return errors.CellsFailed(len(rep.Failed), rep.Total())
	}
	return nil
}

func printSweepReport(w io.Writer, name string, rep *app.SweepReport) {
	fmt.Fprintf(w, "Sweep %s (%s): %d cells in %dms\n", name, rep.SweepID, rep.Total(), rep.RuntimeMs)
	fmt.Fprintf(w, "  executed:    %d\n", len(rep.Executed))
	fmt.Fprintf(w, "  skipped:     %d\n", len(rep.Skipped))
	fmt.Fprintf(w, "  failed:      %d\n", len(rep.Failed))
	if len(rep.NotStarted) > 0 {
		fmt.Fprintf(w, "  not started: %d\n", len(rep.NotStarted))
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "  FAILED %s [%s]: %s\n", f.Point.Key(), f.Kind, f.Reason())
	}
}
