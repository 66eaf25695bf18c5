package app

import (
	"context"
	"fmt"

	"episweep/domain/core"
	"episweep/domain/series"
	"episweep/domain/sweep"
	"episweep/internal"
	"episweep/ports"

	"github.com/montanaflynn/stats"
)

// AggregateService computes cross-seed statistics from stored cell artifacts.
type AggregateService struct {
	store  ports.OutputStore
	logger *internal.Logger
}

// NewAggregateService creates an aggregate service over store.
func NewAggregateService(store ports.OutputStore, logger *internal.Logger) *AggregateService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AggregateService{store: store, logger: logger}
}

// FinalInfectedCurve loads each (R, seed) cell's overall array, converts its
// last value to a percentage of population, and averages over seeds per R.
// A missing or unmarked cell fails the whole curve with a store error naming
// its key.
func (s *AggregateService) FinalInfectedCurve(ctx context.Context, arm string, adoptionPct int, tenTimesR []int, seeds []int64, population float64) (*series.Curve, error) {
	if len(seeds) == 0 {
		return nil, core.NewValidationError("seeds", "at least one seed required")
	}
	if population <= 0 {
		return nil, core.NewValidationError("population", fmt.Sprintf("must be positive, got %g", population))
	}

	curve := &series.Curve{
		Arm:         arm,
		AdoptionPct: adoptionPct,
		Population:  population,
		Seeds:       append([]int64(nil), seeds...),
		Points:      make([]series.CurvePoint, 0, len(tenTimesR)),
	}
	for _, r := range tenTimesR {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perSeed := make([]float64, 0, len(seeds))
		for _, seed := range seeds {
			point := sweep.GridPoint{Arm: arm, AdoptionPct: adoptionPct, TenTimesR: r, Seed: seed}
			key, err := s.completeKey(ctx, point)
			if err != nil {
				return nil, err
			}
			overall, err := s.store.GetArray(ctx, key, ports.ArrayOverall)
			if err != nil {
				return nil, err
			}
			pct, err := series.PercentOfPopulation(overall, population)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", point.Key(), err)
			}
			perSeed = append(perSeed, pct)
		}

		mean, err := series.MeanOf(perSeed)
		if err != nil {
			return nil, err
		}
		median, err := stats.Median(perSeed)
		if err != nil {
			return nil, core.NewShapeMismatchError("median at ten_times_r %d: %v", r, err)
		}
		curve.Points = append(curve.Points, series.CurvePoint{
			TenTimesR: r,
			R:         float64(r) / 10,
			MeanPct:   mean,
			MedianPct: median,
			PerSeed:   perSeed,
		})
	}

	s.logger.Debug("[AggregateService] curve %s/%d: %d points over %d seeds", arm, adoptionPct, len(curve.Points), len(seeds))
	return curve, nil
}

// SeedAveraged loads the full tables of one (arm, adoption, R) cell across
// seeds and averages them elementwise.
func (s *AggregateService) SeedAveraged(ctx context.Context, arm string, adoptionPct, tenTimesR int, seeds []int64) (*series.AggregatedSeries, error) {
	tables := make([]*series.ResultSeries, 0, len(seeds))
	for _, seed := range seeds {
		point := sweep.GridPoint{Arm: arm, AdoptionPct: adoptionPct, TenTimesR: tenTimesR, Seed: seed}
		key, err := s.completeKey(ctx, point)
		if err != nil {
			return nil, err
		}
		table, err := s.store.GetTable(ctx, key)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return series.AverageOverSeeds(tables)
}

// AdoptionSplit averages the adopter/non-adopter split across seeds for one
// cell group. Either side is nil when its subpopulation is empty.
func (s *AggregateService) AdoptionSplit(ctx context.Context, arm string, adoptionPct, tenTimesR int, seeds []int64, population float64) (series.AdoptionSplit, error) {
	agg, err := s.SeedAveraged(ctx, arm, adoptionPct, tenTimesR, seeds)
	if err != nil {
		return series.AdoptionSplit{}, err
	}
	return series.SplitByAdoption(agg.Mean, float64(adoptionPct)/100, population)
}

// DailyNewInfections returns the seed-averaged daily increments of
// total_infected, with seedInfected as the day-zero baseline.
func (s *AggregateService) DailyNewInfections(ctx context.Context, arm string, adoptionPct, tenTimesR int, seeds []int64, seedInfected float64) ([]float64, error) {
	agg, err := s.SeedAveraged(ctx, arm, adoptionPct, tenTimesR, seeds)
	if err != nil {
		return nil, err
	}
	total, err := agg.Mean.Channel(series.ChannelTotalInfected)
	if err != nil {
		return nil, err
	}
	return series.DailyIncrements(total, seedInfected), nil
}

// completeKey returns point's key once its completion marker exists. Artifacts
// of a cell interrupted before MarkComplete are never read.
func (s *AggregateService) completeKey(ctx context.Context, point sweep.GridPoint) (string, error) {
	key := point.Key()
	complete, err := s.store.IsComplete(ctx, key)
	if err != nil {
		return "", err
	}
	if !complete {
		return "", core.NewStoreError("aggregate", key, core.ErrIncompleteCell)
	}
	return key, nil
}
