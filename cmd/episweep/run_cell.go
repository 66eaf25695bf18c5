package main

import (
	"fmt"
	"math"
	"path/filepath"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/policy"
	"episweep/domain/series"
	"episweep/domain/sweep"
	"episweep/domain/vaccine"
	"episweep/internal/container"
	"episweep/internal/errors"
	"episweep/ports"

	"github.com/spf13/cobra"
)

// defaultR is the transmissibility used for a single cell when --R is not given.
const defaultR = 5.8 * 1.6

type runCellOptions struct {
	adoption   int
	outputPath string
	r          float64
	seed       int64
	novid      bool
	phone      bool
	vaccinate  bool
}

func newRunCellCmd(a *cli) *cobra.Command {
	opts := runCellOptions{}

	cmd := &cobra.Command{
		Use:   "run-cell",
		Short: "Run one simulation and write its table and arrays",
		Long: `Run one simulation at the given app adoption and write
<output-path>_full.csv, <output-path>_overall.npy and, when adoption is
above zero, <output-path>_user.npy.

When the file prefix is a cell key (<arm>_<adoption>_<ten_times_r>_<seed>)
matching the flags, a completion manifest is written last so aggregate and
later sweeps treat the cell as done.

Example: episweep run-cell --adoption 40 --output-path results/novid_40 --novid --R 2.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCell(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.adoption, "adoption", 0, "App adoption in percent (0-100)")
	cmd.Flags().StringVar(&opts.outputPath, "output-path", "", "Output folder and file prefix")
	cmd.Flags().Float64Var(&opts.r, "R", defaultR, "Infectious rate")
	cmd.Flags().Int64Var(&opts.seed, "seed", params.DefaultSeeds[0], "Simulator RNG seed")
	cmd.Flags().BoolVar(&opts.novid, "novid", false, "Run with exposure notification on")
	cmd.Flags().BoolVar(&opts.phone, "phone", false, "Scale app adoption by phone ownership per age band")
	cmd.Flags().BoolVar(&opts.vaccinate, "vaccinate", false, "Attach the default vaccination plan")
	cmd.MarkFlagRequired("adoption")
	cmd.MarkFlagRequired("output-path")

	return cmd
}

// cellConfiguration applies adoption, R and seed to the base parameters and
// then the exposure-notification arm.
func cellConfiguration(opts runCellOptions) (params.Configuration, error) {
	if opts.adoption < 0 || opts.adoption > 100 {
		return params.Configuration{}, errors.InvalidInput(fmt.Sprintf("--adoption must be within 0..100, got %d", opts.adoption))
	}
	mode := policy.AdoptionFlat
	if opts.phone {
		mode = policy.AdoptionByAgeBand
	}
	arm := policy.NonNovid()
	if opts.novid {
		arm = policy.Novid()
	}
	return policy.Apply(params.Base(),
		policy.ScaleAppAdoption(float64(opts.adoption)/100, mode),
		policy.InfectiousRate(opts.r),
		policy.Seed(opts.seed),
		arm,
	)
}

// cellPoint returns the grid point named by key, or nil when key is a free
// prefix. A key that names a different cell than the flags is rejected.
func cellPoint(opts runCellOptions, key string) (*sweep.GridPoint, error) {
	point, err := sweep.ParseKey(key)
	if err != nil {
		return nil, nil
	}
	arm := policy.ArmNonNovid
	if opts.novid {
		arm = policy.ArmNovid
	}
	if point.Arm != arm || point.AdoptionPct != opts.adoption || point.Seed != opts.seed ||
		math.Abs(point.InfectiousRate()-opts.r) > 1e-9 {
		return nil, errors.InvalidInput(fmt.Sprintf(
			"--output-path %q names cell %s but flags describe %s_%d_R%g_%d", key, point.Key(), arm, opts.adoption, opts.r, opts.seed))
	}
	return &point, nil
}

func (a *cli) runCell(cmd *cobra.Command, opts runCellOptions) error {
	ctx := cmd.Context()

	cfg, err := cellConfiguration(opts)
	if err != nil {
		return errors.Wrap(err, "invalid cell configuration")
	}
	dir, key := filepath.Split(opts.outputPath)
	if key == "" {
		return errors.InvalidInput(fmt.Sprintf("--output-path %q has no file prefix", opts.outputPath))
	}
	if dir == "" {
		dir = "."
	}
	point, err := cellPoint(opts, key)
	if err != nil {
		return err
	}
	c, err := container.New(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)
	store, err := c.Store(dir)
	if err != nil {
		return err
	}
	var plan *vaccine.Plan
	if opts.vaccinate {
		p := vaccine.Default()
		plan = &p
	}

	table, err := c.Runner.Run(ctx, cfg, 0, plan)
	if err != nil {
		return errors.Wrap(err, "simulation run failed")
	}

	if err := store.PutTable(ctx, key, table); err != nil {
		return errors.Wrap(err, "failed to write table")
	}
	overall, err := table.Channel(series.ChannelTotalInfected)
	if err != nil {
		return errors.Wrap(err, "result has no total_infected")
	}
	if err := store.PutArray(ctx, key, ports.ArrayOverall, overall); err != nil {
		return errors.Wrap(err, "failed to write overall array")
	}
	arrays := []string{ports.ArrayOverall}
	if opts.adoption > 0 {
		user, err := table.Channel(series.ChannelAppUserInfected)
		if err != nil {
			return errors.Wrap(err, "result has no app user channel")
		}
		if err := store.PutArray(ctx, key, ports.ArrayUser, user); err != nil {
			return errors.Wrap(err, "failed to write user array")
		}
		arrays = append(arrays, ports.ArrayUser)
	}
	if point != nil {
		manifest := sweep.NewCellManifest(core.NewID(), *point, cfg.Hash(), table.Len()-1, table.Len(),
			table.Channels(), arrays, opts.vaccinate)
		if err := store.MarkComplete(ctx, manifest); err != nil {
			return errors.Wrap(err, "failed to mark cell complete")
		}
	}

	final, _ := table.Last(series.ChannelTotalInfected)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d days, %.0f infected (%s)\n",
		opts.outputPath, table.Len()-1, final, store.TablePath(key))
	return nil
}
