package main

import (
	"episweep/adapters/api"
	"episweep/internal/config"
	"episweep/internal/container"
	"episweep/internal/errors"

	"github.com/spf13/cobra"
)

func newServeCmd(a *cli) *cobra.Command {
	var gridPath, addr, ledgerDSN string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a grid's persisted results over HTTP",
		Long: `Serve cell status and final-infected curves for a grid as JSON. With a
ledger, recorded outcomes are listed under /sweeps/{id}/cells?status=failed.

Example: episweep serve --grid grids/figure1.yaml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.LoadGrid(gridPath)
			if err != nil {
				return err
			}
			c, err := container.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer c.Shutdown(cmd.Context())
			store, err := c.Store(spec.OutputPath(a.cfg.Store.OutputDir))
			if err != nil {
				return err
			}
			if addr == "" {
				addr = ":" + a.cfg.Server.Port
			}
			if err := c.InitLedger(cmd.Context(), ledgerDSN); err != nil {
				return err
			}
			server := api.NewServer(store, c.AggregateService(store), *spec, a.logger)
			if c.Ledger != nil {
				server.SetLedger(c.Ledger)
			}
			if err := server.ListenAndServe(cmd.Context(), addr); err != nil {
				return errors.Wrap(err, "server failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gridPath, "grid", "", "Grid YAML file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :$PORT)")
	cmd.Flags().StringVar(&ledgerDSN, "ledger", "", "Ledger DSN for /sweeps/{id}/cells; default EPISWEEP_LEDGER_DSN")
	cmd.MarkFlagRequired("grid")

	return cmd
}
