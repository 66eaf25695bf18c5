package series

import "fmt"

// CurvePoint is the seed-averaged final infection percentage at one R.
type CurvePoint struct {
	TenTimesR int       `json:"ten_times_r"`
	R         float64   `json:"r"`
	MeanPct   float64   `json:"mean_pct"`
	MedianPct float64   `json:"median_pct"`
	PerSeed   []float64 `json:"per_seed"`
}

// Curve is the final-infected curve for one arm at one adoption level.
type Curve struct {
	Arm         string       `json:"arm"`
	AdoptionPct int          `json:"adoption_pct"`
	Population  float64      `json:"population"`
	Seeds       []int64      `json:"seeds"`
	Points      []CurvePoint `json:"points"`
}

// Name identifies the curve in exports, e.g. novid_40.
func (c Curve) Name() string {
	return fmt.Sprintf("%s_%d", c.Arm, c.AdoptionPct)
}
