package main

import (
	"fmt"
	"io"

	"episweep/adapters/excel"
	"episweep/adapters/report"
	"episweep/domain/series"
	"episweep/internal/config"
	"episweep/internal/container"
	"episweep/internal/errors"

	"github.com/spf13/cobra"
)

type aggregateOptions struct {
	grid       string
	xlsxPath   string
	csvPath    string
	reportPath string
}

func newAggregateCmd(a *cli) *cobra.Command {
	opts := aggregateOptions{}

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Compute final-infected curves over R for every arm and adoption",
		Long: `Read the overall arrays a sweep persisted and compute, for every arm and
adoption rate in the grid, the final infected percentage at each R averaged
over seeds. Any missing cell fails the command and names its key.

Example: episweep aggregate --grid grids/figure1.yaml --xlsx results/figure1.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAggregate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.grid, "grid", "", "Grid YAML file")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "Write curves to an xlsx workbook")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "Write curves to a long-format CSV")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write curve tables to a .md or .html report")
	cmd.MarkFlagRequired("grid")

	return cmd
}

func (a *cli) runAggregate(cmd *cobra.Command, opts aggregateOptions) error {
	ctx := cmd.Context()

	spec, err := config.LoadGrid(opts.grid)
	if err != nil {
		return err
	}
	c, err := container.New(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)
	store, err := c.Store(spec.OutputPath(a.cfg.Store.OutputDir))
	if err != nil {
		return err
	}
	service := c.AggregateService(store)

	var curves []*series.Curve
	for _, arm := range spec.Arms {
		for _, adoption := range spec.AdoptionPcts {
			curve, err := service.FinalInfectedCurve(ctx, arm, adoption, spec.TenTimesR.Values(), spec.Seeds, float64(spec.Population))
			if err != nil {
				return errors.Wrapf(err, "curve %s_%d", arm, adoption)
			}
			curves = append(curves, curve)
		}
	}

	printCurves(cmd.OutOrStdout(), curves)

	for _, path := range []string{opts.xlsxPath, opts.csvPath} {
		if path == "" {
			continue
		}
		if err := excel.NewCurveWriter(path, a.logger).Write(curves); err != nil {
			return errors.Wrapf(err, "failed to export %s", path)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Curves written to %s\n", path)
	}
	if opts.reportPath != "" {
		if err := report.WriteFile(opts.reportPath, report.SweepSummary{GridName: spec.Name, Curves: curves}); err != nil {
			return errors.Wrap(err, "failed to write report")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", opts.reportPath)
	}
	return nil
}

func printCurves(w io.Writer, curves []*series.Curve) {
	for _, c := range curves {
		fmt.Fprintf(w, "%s (population %.0f, %d seeds)\n", c.Name(), c.Population, len(c.Seeds))
		for _, p := range c.Points {
			fmt.Fprintf(w, "  R=%4.1f  mean=%7.3f%%  median=%7.3f%%\n", p.R, p.MeanPct, p.MedianPct)
		}
	}
}
