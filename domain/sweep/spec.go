package sweep

import (
	"fmt"
	"path/filepath"

	"episweep/domain/core"
	"episweep/domain/params"
)

// IntRange is an inclusive integer range with a positive step.
type IntRange struct {
	From int `yaml:"from" json:"from"`
	To   int `yaml:"to" json:"to"`
	Step int `yaml:"step" json:"step"`
}

// Values expands the range.
func (r IntRange) Values() []int {
	step := r.Step
	if step <= 0 {
		step = 1
	}
	var out []int
	for v := r.From; v <= r.To; v += step {
		out = append(out, v)
	}
	return out
}

// GridSpec is the on-disk description of an experiment.
type GridSpec struct {
	Name         string   `yaml:"name" json:"name"`
	OutputDir    string   `yaml:"output_dir" json:"output_dir"`
	Arms         []string `yaml:"arms" json:"arms"`
	AdoptionPcts []int    `yaml:"adoption_pcts" json:"adoption_pcts"`
	TenTimesR    IntRange `yaml:"ten_times_r" json:"ten_times_r"`
	Seeds        []int64  `yaml:"seeds" json:"seeds"`
	AdoptionMode string   `yaml:"adoption_mode" json:"adoption_mode"`
	Population   int      `yaml:"population" json:"population"`
	DurationDays int      `yaml:"duration_days" json:"duration_days"`
	Vaccinate    bool     `yaml:"vaccinate" json:"vaccinate"`
	Workers      int      `yaml:"workers" json:"workers"`
	SeedInfected int      `yaml:"seed_infected" json:"seed_infected"`

	// Overrides are merged into the base configuration before any arm runs.
	Overrides map[string]float64 `yaml:"overrides" json:"overrides,omitempty"`
}

// gridFields are parameters the grid sets through its own fields.
var gridFields = map[string]string{
	params.KeyNTotal:         "population",
	params.KeyEndTime:        "duration_days",
	params.KeyNSeedInfection: "seed_infected",
	params.KeyRNGSeed:        "seeds",
	params.KeyInfectiousRate: "ten_times_r",
}

// ApplyDefaults fills unset fields from the base configuration.
func (s *GridSpec) ApplyDefaults() {
	base := params.Base()
	if len(s.Seeds) == 0 {
		s.Seeds = append([]int64(nil), params.DefaultSeeds...)
	}
	if s.Population == 0 {
		s.Population = int(base.Value(params.KeyNTotal))
	}
	if s.DurationDays == 0 {
		s.DurationDays = int(base.Value(params.KeyEndTime))
	}
	if s.AdoptionMode == "" {
		s.AdoptionMode = "age_band"
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
}

// Validate checks the grid describes at least one cell.
func (s GridSpec) Validate() error {
	if s.Name == "" {
		return core.NewValidationError("name", "required")
	}
	if len(s.Arms) == 0 {
		return core.NewValidationError("arms", "at least one arm required")
	}
	if len(s.AdoptionPcts) == 0 {
		return core.NewValidationError("adoption_pcts", "at least one adoption rate required")
	}
	if len(s.TenTimesR.Values()) == 0 {
		return core.NewValidationError("ten_times_r", fmt.Sprintf("empty range %d..%d", s.TenTimesR.From, s.TenTimesR.To))
	}
	if s.Population <= 0 {
		return core.NewValidationError("population", "must be positive")
	}
	for key := range s.Overrides {
		if !params.Recognized(key) {
			return core.NewConfigurationError(key, "unrecognized parameter in overrides")
		}
		if field, ok := gridFields[key]; ok {
			return core.NewConfigurationError(key, fmt.Sprintf("set through %s, not overrides", field))
		}
	}
	return nil
}

// OutputPath is OutputDir, or root/<name> when the grid names no directory.
func (s GridSpec) OutputPath(root string) string {
	if s.OutputDir != "" {
		return s.OutputDir
	}
	return filepath.Join(root, s.Name)
}

// BaseConfiguration is params.Base with the grid's population, duration and
// seed infections applied.
func (s GridSpec) BaseConfiguration() params.Configuration {
	overrides := map[string]float64{}
	if s.Population > 0 {
		overrides[params.KeyNTotal] = float64(s.Population)
	}
	if s.DurationDays > 0 {
		overrides[params.KeyEndTime] = float64(s.DurationDays)
	}
	if s.SeedInfected > 0 {
		overrides[params.KeyNSeedInfection] = float64(s.SeedInfected)
	}
	return params.Base().With(overrides)
}

// Grid returns the cartesian product of the swept values.
func (s GridSpec) Grid() Grid {
	return Grid{
		Arms:         s.Arms,
		AdoptionPcts: s.AdoptionPcts,
		TenTimesR:    s.TenTimesR.Values(),
		Seeds:        s.Seeds,
	}
}
