package container

import (
	"context"
	"fmt"

	"episweep/adapters/engine/compartment"
	"episweep/adapters/engine/process"
	"episweep/adapters/ledger"
	"episweep/adapters/store/fs"
	"episweep/app"
	"episweep/internal"
	"episweep/internal/config"
	"episweep/internal/errors"
	"episweep/ports"
)

// Container holds the application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Simulator backend
	Engines ports.EngineFactory
	Runner  *app.Runner

	// Optional outcome ledger
	Ledger ports.SweepLedger
}

// New creates a container and its engine factory.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}
	if err := c.initEngine(); err != nil {
		return nil, err
	}
	c.Runner = app.NewRunner(c.Engines, c.Logger)
	return c, nil
}

// initEngine selects the simulator backend named by the configuration
func (c *Container) initEngine() error {
	switch c.Config.Engine.Kind {
	case config.EngineProcess:
		f, err := process.NewFactory(process.Config{
			Command: c.Config.Engine.Command,
			Args:    c.Config.Engine.Args,
			Timeout: c.Config.Engine.Timeout,
		}, c.Logger)
		if err != nil {
			return errors.Wrap(err, "failed to start process engine")
		}
		c.Engines = f
	case config.EngineReference:
		c.Engines = compartment.NewFactory()
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown engine %q", c.Config.Engine.Kind))
	}
	c.Logger.Debug("[Container] engine %s initialized", c.Config.Engine.Kind)
	return nil
}

// InitLedger opens the outcome ledger. dsn overrides EPISWEEP_LEDGER_DSN;
// with neither set no ledger is opened.
func (c *Container) InitLedger(ctx context.Context, dsn string) error {
	if dsn == "" {
		dsn = c.Config.Ledger.DSN
	}
	if dsn == "" {
		return nil
	}
	l, err := ledger.Open(ctx, dsn)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to open ledger: %w", err))
	}
	c.Ledger = l
	c.Logger.Info("[Container] recording cell outcomes to ledger")
	return nil
}

// Store opens the filesystem artifact store rooted at dir.
func (c *Container) Store(dir string) (*fs.LocalOutputStore, error) {
	store, err := fs.NewLocalOutputStore(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open output directory")
	}
	return store, nil
}

// SweepService builds a sweep service writing to store and, when open, the
// ledger.
func (c *Container) SweepService(store ports.OutputStore) *app.SweepService {
	var writer ports.SweepLedgerWriter
	if c.Ledger != nil {
		writer = c.Ledger
	}
	return app.NewSweepService(c.Runner, store, writer, c.Logger)
}

// AggregateService builds an aggregate service reading from store.
func (c *Container) AggregateService(store ports.OutputStore) *app.AggregateService {
	return app.NewAggregateService(store, c.Logger)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	defer c.Logger.Sync()
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}
