package app

import (
	"context"
	"fmt"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/series"
	"episweep/domain/vaccine"
	"episweep/internal"
	"episweep/ports"
)

// Runner executes one simulation: fresh engine, optional vaccination plan,
// run, extract, close.
type Runner struct {
	engines ports.EngineFactory
	logger  *internal.Logger
}

// NewRunner creates a runner over the given engine factory.
func NewRunner(engines ports.EngineFactory, logger *internal.Logger) *Runner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Runner{engines: engines, logger: logger}
}

// Run executes cfg for durationDays, or the configuration's end_time when
// durationDays is zero. The returned table has durationDays+1 rows.
func (r *Runner) Run(ctx context.Context, cfg params.Configuration, durationDays int, plan *vaccine.Plan) (*series.ResultSeries, error) {
	if durationDays == 0 {
		durationDays = int(cfg.Value(params.KeyEndTime))
	}
	if durationDays <= 0 {
		return nil, core.NewConfigurationError(params.KeyEndTime, fmt.Sprintf("duration must be positive, got %d", durationDays))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	engine, err := r.engines.NewEngine(ctx, cfg)
	if err != nil {
		return nil, classifyEngineError(err, "create engine")
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			r.logger.Warn("[Runner] closing engine: %v", cerr)
		}
	}()

	if plan != nil {
		if err := plan.Attach(ctx, engine); err != nil {
			return nil, classifyEngineError(err, "attach vaccination")
		}
	}

	r.logger.Trace("[Runner] running %d days (config %s)", durationDays, cfg.Hash().Short())
	result, err := engine.Run(ctx, durationDays)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyEngineError(err, "run")
	}
	if result == nil {
		return nil, core.NewSimulationError("engine returned no table", nil)
	}
	if result.Len() != durationDays+1 {
		return nil, core.NewSimulationError(fmt.Sprintf("engine returned %d rows for %d days", result.Len(), durationDays), nil)
	}
	if missing := result.Missing(series.RequiredChannels); len(missing) > 0 {
		return nil, core.NewSimulationError(fmt.Sprintf("engine table missing channels %v", missing), nil)
	}
	return result, nil
}

// classifyEngineError keeps configuration and cancellation errors as they
// are and reports everything else as a simulation failure.
func classifyEngineError(err error, op string) error {
	switch core.ErrorKind(err) {
	case core.KindConfiguration, core.KindSimulation, core.KindCanceled:
		return fmt.Errorf("%s: %w", op, err)
	default:
		return core.NewSimulationError(op, err)
	}
}
