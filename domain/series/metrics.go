package series

import (
	"fmt"

	"episweep/domain/core"
)

// PercentageInfected is 100 * total_infected[atDay] / populationSize.
func PercentageInfected(s *ResultSeries, populationSize float64, atDay int) (float64, error) {
	if populationSize <= 0 {
		return 0, core.NewValidationError("population_size", fmt.Sprintf("must be positive, got %g", populationSize))
	}
	if atDay < 0 || atDay >= s.Len() {
		return 0, core.NewValidationError("at_day", fmt.Sprintf("%d outside [0, %d)", atDay, s.Len()))
	}
	v, err := s.Value(ChannelTotalInfected, atDay)
	if err != nil {
		return 0, err
	}
	return 100 * v / populationSize, nil
}

// LastDay is the index of the final row, or -1 for an empty series.
func LastDay(s *ResultSeries) int {
	return s.Len() - 1
}

// FinalPercentageInfected is PercentageInfected on the last row.
func FinalPercentageInfected(s *ResultSeries, populationSize float64) (float64, error) {
	return PercentageInfected(s, populationSize, LastDay(s))
}

// PercentOfPopulation converts a cumulative count array's final value into
// a percentage of populationSize.
func PercentOfPopulation(cumulative []float64, populationSize float64) (float64, error) {
	if len(cumulative) == 0 {
		return 0, core.NewShapeMismatchError("empty series")
	}
	if populationSize <= 0 {
		return 0, core.NewValidationError("population_size", fmt.Sprintf("must be positive, got %g", populationSize))
	}
	return 100 * cumulative[len(cumulative)-1] / populationSize, nil
}

// AdoptionSplit holds infection percentages within the app-adopter and
// non-adopter subpopulations. A nil field means the subpopulation is empty
// and the percentage is undefined.
type AdoptionSplit struct {
	NonAdopterPct *float64 `json:"non_adopter_pct,omitempty"`
	AdopterPct    *float64 `json:"adopter_pct,omitempty"`
}

// SplitByAdoption partitions the final cumulative infections into adopters
// and non-adopters, each normalized by its own population share.
func SplitByAdoption(s *ResultSeries, adoptionFraction float64, totalPopulation float64) (AdoptionSplit, error) {
	return SplitByAdoptionAt(s, adoptionFraction, totalPopulation, s.Len()-1)
}

// SplitByAdoptionAt is SplitByAdoption on a given day.
func SplitByAdoptionAt(s *ResultSeries, adoptionFraction float64, totalPopulation float64, day int) (AdoptionSplit, error) {
	if adoptionFraction < 0 || adoptionFraction > 1 {
		return AdoptionSplit{}, core.NewValidationError("adoption_fraction", fmt.Sprintf("%g outside [0, 1]", adoptionFraction))
	}
	if totalPopulation <= 0 {
		return AdoptionSplit{}, core.NewValidationError("total_population", fmt.Sprintf("must be positive, got %g", totalPopulation))
	}
	total, err := s.Value(ChannelTotalInfected, day)
	if err != nil {
		return AdoptionSplit{}, err
	}

	var users float64
	if adoptionFraction > 0 {
		users, err = s.Value(ChannelAppUserInfected, day)
		if err != nil {
			return AdoptionSplit{}, err
		}
	}

	var split AdoptionSplit
	if adoptionFraction > 0 {
		pct := 100 * users / (adoptionFraction * totalPopulation)
		split.AdopterPct = &pct
	}
	if adoptionFraction < 1 {
		pct := 100 * (total - users) / ((1 - adoptionFraction) * totalPopulation)
		split.NonAdopterPct = &pct
	}
	return split, nil
}

// DailyIncrements turns a cumulative series into per-day new counts. The
// seed value stands in for the day before the first row, so the result has
// one entry per input row.
func DailyIncrements(cumulative []float64, seedValue float64) []float64 {
	out := make([]float64, len(cumulative))
	prev := seedValue
	for i, v := range cumulative {
		out[i] = v - prev
		prev = v
	}
	return out
}
