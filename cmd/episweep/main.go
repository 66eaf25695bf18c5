// Command episweep runs epidemic simulator experiments: single cells, resumable
// parameter sweeps, figure aggregation and a read-only results API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"episweep/internal"
	"episweep/internal/config"
	"episweep/internal/errors"

	"github.com/spf13/cobra"
)

// cli carries what every subcommand needs after the root command has loaded
// configuration.
type cli struct {
	cfg    *config.Config
	logger *internal.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &cli{}
	var (
		engineKind string
		engineCmd  string
		logLevel   string
		envFile    string
	)

	rootCmd := &cobra.Command{
		Use:           "episweep",
		Short:         "Experiment harness for the epidemic simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("engine") {
				cfg.Engine.Kind = engineKind
			}
			if cmd.Flags().Changed("engine-cmd") {
				cfg.Engine.Command = engineCmd
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = internal.NewLogger(internal.ParseLogLevel(cfg.Logging.Level))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&engineKind, "engine", config.EngineReference, "Simulator backend: ref or process")
	rootCmd.PersistentFlags().StringVar(&engineCmd, "engine-cmd", "", "Simulator executable for --engine process")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "ERROR, WARN, INFO, DEBUG or TRACE")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")

	rootCmd.AddCommand(
		newRunCellCmd(a),
		newSweepCmd(a),
		newAggregateCmd(a),
		newServeCmd(a),
		newCellsCmd(a),
	)
	return rootCmd
}
