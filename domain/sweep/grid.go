// Package sweep defines the cells of a parameter sweep, how each maps to an
// output artifact key, and the manifests written when a cell completes.
package sweep

import (
	"fmt"
	"strconv"
	"strings"

	"episweep/domain/core"
)

// GridPoint is one cell of a sweep: a policy arm, the swept values, and a
// seed. Transmissibility is carried as ten times R so it stays an integer.
type GridPoint struct {
	Arm         string `json:"arm" db:"arm"`
	AdoptionPct int    `json:"adoption_pct" db:"adoption_pct"`
	TenTimesR   int    `json:"ten_times_r" db:"ten_times_r"`
	Seed        int64  `json:"seed" db:"seed"`
}

// Key is the artifact key for the cell: <arm>_<adoption>_<tenTimesR>_<seed>.
func (p GridPoint) Key() string {
	return fmt.Sprintf("%s_%d_%d_%d", p.Arm, p.AdoptionPct, p.TenTimesR, p.Seed)
}

// String is Key, so cells print the way they are stored.
func (p GridPoint) String() string {
	return p.Key()
}

// InfectiousRate returns R as used by the engine.
func (p GridPoint) InfectiousRate() float64 {
	return float64(p.TenTimesR) / 10
}

// AdoptionRate returns the adoption percentage as a fraction.
func (p GridPoint) AdoptionRate() float64 {
	return float64(p.AdoptionPct) / 100
}

// Validate checks the cell can be turned into a key and configuration.
func (p GridPoint) Validate() error {
	if p.Arm == "" || strings.ContainsAny(p.Arm, "/\\ ") {
		return core.NewValidationError("arm", fmt.Sprintf("%q is not a valid arm name", p.Arm))
	}
	if p.AdoptionPct < 0 || p.AdoptionPct > 100 {
		return core.NewValidationError("adoption_pct", fmt.Sprintf("%d outside [0, 100]", p.AdoptionPct))
	}
	if p.TenTimesR < 0 {
		return core.NewValidationError("ten_times_r", fmt.Sprintf("%d is negative", p.TenTimesR))
	}
	return nil
}

// ParseKey reverses Key. Arm names may contain underscores; the last three
// fields are always numeric.
func ParseKey(key string) (GridPoint, error) {
	parts := strings.Split(key, "_")
	if len(parts) < 4 {
		return GridPoint{}, core.NewValidationError("key", fmt.Sprintf("%q has too few fields", key))
	}
	n := len(parts)
	adoption, err := strconv.Atoi(parts[n-3])
	if err != nil {
		return GridPoint{}, core.NewValidationError("key", fmt.Sprintf("%q adoption: %v", key, err))
	}
	tenR, err := strconv.Atoi(parts[n-2])
	if err != nil {
		return GridPoint{}, core.NewValidationError("key", fmt.Sprintf("%q ten_times_r: %v", key, err))
	}
	seed, err := strconv.ParseInt(parts[n-1], 10, 64)
	if err != nil {
		return GridPoint{}, core.NewValidationError("key", fmt.Sprintf("%q seed: %v", key, err))
	}
	p := GridPoint{
		Arm:         strings.Join(parts[:n-3], "_"),
		AdoptionPct: adoption,
		TenTimesR:   tenR,
		Seed:        seed,
	}
	return p, p.Validate()
}

// Grid is the cartesian product of swept values.
type Grid struct {
	Arms         []string
	AdoptionPcts []int
	TenTimesR    []int
	Seeds        []int64
}

// Points expands the grid in arm, adoption, R, seed order.
func (g Grid) Points() []GridPoint {
	points := make([]GridPoint, 0, len(g.Arms)*len(g.AdoptionPcts)*len(g.TenTimesR)*len(g.Seeds))
	for _, arm := range g.Arms {
		for _, adoption := range g.AdoptionPcts {
			for _, r := range g.TenTimesR {
				for _, seed := range g.Seeds {
					points = append(points, GridPoint{Arm: arm, AdoptionPct: adoption, TenTimesR: r, Seed: seed})
				}
			}
		}
	}
	return points
}

// Size is the number of cells Points returns.
func (g Grid) Size() int {
	return len(g.Arms) * len(g.AdoptionPcts) * len(g.TenTimesR) * len(g.Seeds)
}
