package ports

import (
	"context"

	"episweep/domain/params"
	"episweep/domain/series"
	"episweep/domain/vaccine"
)

// EngineFactory creates simulator instances. Every call returns a fresh
// instance that shares no state with earlier ones.
type EngineFactory interface {
	// NewEngine configures an instance. A configuration the engine refuses
	// must be reported as core.ErrConfiguration.
	NewEngine(ctx context.Context, cfg params.Configuration) (Engine, error)
}

// Engine is one configured simulator instance. It is used for a single run
// and then closed.
type Engine interface {
	vaccine.Registrar

	// Run advances the simulation durationDays steps and returns the per-day
	// table, durationDays+1 rows including day zero.
	Run(ctx context.Context, durationDays int) (*series.ResultSeries, error)

	// Close releases the instance.
	Close() error
}

// EngineFactoryFunc adapts a function to EngineFactory.
type EngineFactoryFunc func(ctx context.Context, cfg params.Configuration) (Engine, error)

// NewEngine calls f.
func (f EngineFactoryFunc) NewEngine(ctx context.Context, cfg params.Configuration) (Engine, error) {
	return f(ctx, cfg)
}
