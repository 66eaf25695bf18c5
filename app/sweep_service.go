package app

import (
	"context"
	"fmt"
	"time"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/policy"
	"episweep/domain/series"
	"episweep/domain/sweep"
	"episweep/domain/vaccine"
	"episweep/internal"
	"episweep/ports"

	"golang.org/x/sync/errgroup"
)

// SweepService runs every cell of a grid, persisting each cell's artifacts
// and skipping cells a previous invocation already completed.
type SweepService struct {
	runner *Runner
	store  ports.OutputStore
	ledger ports.SweepLedgerWriter
	logger *internal.Logger
}

// SweepRequest defines the inputs for one sweep invocation
type SweepRequest struct {
	SweepID      core.ID // optional, will be generated if empty
	Points       []sweep.GridPoint
	Base         params.Configuration // zero value means params.Base()
	AdoptionMode policy.AdoptionMode
	Arms         map[string]policy.Arm // overrides policy.ArmByName
	DurationDays int                   // zero means the configuration's end_time
	Vaccination  *vaccine.Plan
	Workers      int
}

// CellFailure identifies a cell that did not complete and why.
type CellFailure struct {
	Point sweep.GridPoint `json:"point"`
	Kind  string          `json:"kind"`
	Err   error           `json:"-"`
}

// Reason is the failure message.
func (f CellFailure) Reason() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// SweepReport lists executed, skipped and failed cells separately. Cells not
// started because the context was canceled appear in NotStarted.
type SweepReport struct {
	SweepID    core.ID            `json:"sweep_id"`
	Executed   []sweep.GridPoint  `json:"executed"`
	Skipped    []sweep.GridPoint  `json:"skipped"`
	Failed     []CellFailure      `json:"failed"`
	NotStarted []sweep.GridPoint  `json:"not_started"`
	Records    []sweep.CellRecord `json:"records"`
	RuntimeMs  int64              `json:"runtime_ms"`
}

// Total is the number of cells the request named.
func (r *SweepReport) Total() int {
	return len(r.Executed) + len(r.Skipped) + len(r.Failed) + len(r.NotStarted)
}

// Success reports whether every cell is executed or skipped.
func (r *SweepReport) Success() bool {
	return len(r.Failed) == 0 && len(r.NotStarted) == 0
}

// NewSweepService creates a sweep service. ledger may be nil.
func NewSweepService(runner *Runner, store ports.OutputStore, ledger ports.SweepLedgerWriter, logger *internal.Logger) *SweepService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SweepService{
		runner: runner,
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

// BuildCellConfiguration derives a cell's configuration: base, then app
// adoption, then infectious_rate, then rng_seed, then the policy arm.
func BuildCellConfiguration(base params.Configuration, point sweep.GridPoint, mode policy.AdoptionMode, arm policy.Arm) (params.Configuration, error) {
	return policy.Apply(base,
		policy.ScaleAppAdoption(point.AdoptionRate(), mode),
		policy.InfectiousRate(point.InfectiousRate()),
		policy.Seed(point.Seed),
		arm,
	)
}

// RunSweep executes the request's cells in order, or concurrently when
// Workers > 1. A failing cell is recorded and the sweep continues. The
// returned error is non-nil only when the context ends the sweep early; the
// report is returned either way.
func (s *SweepService) RunSweep(ctx context.Context, req SweepRequest) (*SweepReport, error) {
	startTime := time.Now()

	sweepID := req.SweepID
	if sweepID == "" {
		sweepID = core.NewID()
	}
	if req.Base.Len() == 0 {
		req.Base = params.Base()
	}
	workers := req.Workers
	if workers < 1 {
		workers = 1
	}

	s.logger.Info("[SweepService] sweep %s: %d cells, %d workers", sweepID, len(req.Points), workers)

	outcomes := make([]*cellOutcome, len(req.Points))
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i, point := range req.Points {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A cell still queued when the context ends stays not started.
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = s.executeCell(ctx, sweepID, req, point)
			return nil
		})
	}
	_ = g.Wait()

	report := &SweepReport{SweepID: sweepID}
	for i, point := range req.Points {
		o := outcomes[i]
		if o == nil {
			report.NotStarted = append(report.NotStarted, point)
			continue
		}
		report.Records = append(report.Records, o.record)
		switch o.record.Status {
		case sweep.CellExecuted:
			report.Executed = append(report.Executed, point)
		case sweep.CellSkipped:
			report.Skipped = append(report.Skipped, point)
		case sweep.CellFailed:
			report.Failed = append(report.Failed, CellFailure{Point: point, Kind: o.record.ErrorKind, Err: o.err})
		}
	}
	report.RuntimeMs = time.Since(startTime).Milliseconds()

	s.logger.Info("[SweepService] sweep %s done in %dms: %d executed, %d skipped, %d failed, %d not started",
		sweepID, report.RuntimeMs, len(report.Executed), len(report.Skipped), len(report.Failed), len(report.NotStarted))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("sweep %s interrupted: %w", sweepID, err)
	}
	return report, nil
}

type cellOutcome struct {
	record sweep.CellRecord
	err    error
}

func (s *SweepService) executeCell(ctx context.Context, sweepID core.ID, req SweepRequest, point sweep.GridPoint) *cellOutcome {
	started := time.Now()
	status, err := s.runCell(ctx, sweepID, req, point)

	record := sweep.CellRecord{
		SweepID:  sweepID,
		Point:    point,
		Status:   status,
		Duration: time.Since(started),
		At:       time.Now().UTC(),
	}
	if err != nil {
		record.Status = sweep.CellFailed
		record.ErrorKind = core.ErrorKind(err)
		record.Error = err.Error()
		s.logger.Error("[SweepService] cell %s failed (%s): %v", point.Key(), record.ErrorKind, err)
	} else {
		s.logger.Debug("[SweepService] cell %s %s in %s", point.Key(), status, record.Duration)
	}

	if s.ledger != nil {
		// Ledger errors never fail a cell.
		if lerr := s.ledger.RecordCell(context.WithoutCancel(ctx), record); lerr != nil {
			s.logger.Warn("[SweepService] ledger record for %s: %v", point.Key(), lerr)
		}
	}
	return &cellOutcome{record: record, err: err}
}

func (s *SweepService) runCell(ctx context.Context, sweepID core.ID, req SweepRequest, point sweep.GridPoint) (sweep.CellStatus, error) {
	if err := point.Validate(); err != nil {
		return sweep.CellFailed, core.NewConfigurationError("grid_point", err.Error())
	}
	key := point.Key()

	arm, ok := req.Arms[point.Arm]
	if !ok {
		var err error
		if arm, err = policy.ArmByName(point.Arm); err != nil {
			return sweep.CellFailed, err
		}
	}
	cfg, err := BuildCellConfiguration(req.Base, point, req.AdoptionMode, arm)
	if err != nil {
		return sweep.CellFailed, err
	}

	duration := req.DurationDays
	if duration == 0 {
		duration = int(cfg.Value(params.KeyEndTime))
	}
	vaccinated := req.Vaccination != nil
	fingerprint := sweep.ComputeCellFingerprint(point, cfg.Hash(), duration, vaccinated)

	complete, err := s.store.IsComplete(ctx, key)
	if err != nil {
		return sweep.CellFailed, err
	}
	if complete {
		manifest, err := s.store.Manifest(ctx, key)
		if err != nil {
			return sweep.CellFailed, err
		}
		if manifest.Fingerprint != fingerprint {
			return sweep.CellFailed, core.NewStoreError("resume", key,
				fmt.Errorf("%w: stored %s, requested %s", core.ErrFingerprint, manifest.Fingerprint.Short(), fingerprint.Short()))
		}
		return sweep.CellSkipped, nil
	}

	result, err := s.runner.Run(ctx, cfg, duration, req.Vaccination)
	if err != nil {
		return sweep.CellFailed, err
	}

	arrays, err := s.persist(ctx, point, result)
	if err != nil {
		return sweep.CellFailed, err
	}

	manifest := sweep.NewCellManifest(sweepID, point, cfg.Hash(), duration, result.Len(), result.Channels(), arrays, vaccinated)
	if err := s.store.MarkComplete(ctx, manifest); err != nil {
		return sweep.CellFailed, err
	}
	return sweep.CellExecuted, nil
}

// persist writes the full table and the cumulative infection arrays. The
// app-user array is only meaningful, and only written, when adoption > 0.
func (s *SweepService) persist(ctx context.Context, point sweep.GridPoint, result *series.ResultSeries) ([]string, error) {
	key := point.Key()
	if err := s.store.PutTable(ctx, key, result); err != nil {
		return nil, err
	}

	overall, err := result.Channel(series.ChannelTotalInfected)
	if err != nil {
		return nil, core.NewSimulationError("extract overall", err)
	}
	if err := s.store.PutArray(ctx, key, ports.ArrayOverall, overall); err != nil {
		return nil, err
	}
	arrays := []string{ports.ArrayOverall}

	if point.AdoptionPct > 0 {
		user, err := result.Channel(series.ChannelAppUserInfected)
		if err != nil {
			return nil, core.NewSimulationError("extract user", err)
		}
		if err := s.store.PutArray(ctx, key, ports.ArrayUser, user); err != nil {
			return nil, err
		}
		arrays = append(arrays, ports.ArrayUser)
	}
	return arrays, nil
}
