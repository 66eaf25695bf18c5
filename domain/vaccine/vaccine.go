// Package vaccine describes vaccine efficacy profiles and age-stratified
// rollout schedules, and the protocol for registering them with an engine
// instance before it runs.
package vaccine

import (
	"context"
	"fmt"

	"episweep/domain/core"
	"episweep/domain/params"
)

// Spec is a vaccine efficacy profile. Efficacy slices hold one value per
// strain.
type Spec struct {
	FullEfficacy     []float64 `json:"full_efficacy" yaml:"full_efficacy"`
	SymptomEfficacy  []float64 `json:"symptom_efficacy" yaml:"symptom_efficacy"`
	SevereEfficacy   []float64 `json:"severe_efficacy" yaml:"severe_efficacy"`
	TimeToProtect    int       `json:"time_to_protect" yaml:"time_to_protect"`
	ProtectionPeriod int       `json:"vaccine_protection_period" yaml:"vaccine_protection_period"`
}

// Validate checks efficacy values lie in [0, 1] and durations are positive.
func (s Spec) Validate() error {
	if len(s.FullEfficacy) == 0 {
		return core.NewConfigurationError("full_efficacy", "at least one strain required")
	}
	if len(s.SymptomEfficacy) != len(s.FullEfficacy) || len(s.SevereEfficacy) != len(s.FullEfficacy) {
		return core.NewConfigurationError("vaccine", "efficacy lists must have one value per strain")
	}
	for _, list := range [][]float64{s.FullEfficacy, s.SymptomEfficacy, s.SevereEfficacy} {
		for _, e := range list {
			if e < 0 || e > 1 {
				return core.NewConfigurationError("vaccine", fmt.Sprintf("efficacy %g outside [0, 1]", e))
			}
		}
	}
	if s.TimeToProtect <= 0 {
		return core.NewConfigurationError("time_to_protect", "must be positive")
	}
	if s.ProtectionPeriod <= s.TimeToProtect {
		return core.NewConfigurationError("vaccine_protection_period", "must exceed time_to_protect")
	}
	return nil
}

// Schedule is an age-stratified uptake plan: the fraction of each band
// that gets vaccinated.
type Schedule struct {
	fractions map[params.AgeBand]float64
}

// NewSchedule validates and copies fractions. Bands left out get no uptake.
func NewSchedule(fractions map[params.AgeBand]float64) (Schedule, error) {
	s := Schedule{fractions: make(map[params.AgeBand]float64, len(params.AgeBands))}
	for band, f := range fractions {
		if _, err := params.ParseAgeBand(string(band)); err != nil {
			return Schedule{}, core.NewConfigurationError("vaccine_schedule", err.Error())
		}
		if f < 0 || f > 1 {
			return Schedule{}, core.NewConfigurationError("frac_"+string(band),
				fmt.Sprintf("uptake %g outside [0, 1]", f))
		}
		s.fractions[band] = f
	}
	return s, nil
}

// Fraction returns the uptake for band.
func (s Schedule) Fraction(band params.AgeBand) float64 {
	return s.fractions[band]
}

// Fractions returns the uptake of every band, youngest first.
func (s Schedule) Fractions() []float64 {
	out := make([]float64, len(params.AgeBands))
	for i, b := range params.AgeBands {
		out[i] = s.fractions[b]
	}
	return out
}

// Handle is an engine-issued reference to a registered vaccine.
type Handle string

// ScheduleHandle is an engine-issued reference to a declared rollout.
type ScheduleHandle string

// Registrar is the engine-side surface for vaccination. Registration state
// belongs to one engine instance.
type Registrar interface {
	AddVaccine(ctx context.Context, spec Spec) (Handle, error)
	ScheduleVaccination(ctx context.Context, schedule Schedule, vaccine Handle) (ScheduleHandle, error)
	AttachSchedule(ctx context.Context, schedule ScheduleHandle) error
}

// Plan bundles a vaccine and its rollout.
type Plan struct {
	Vaccine  Spec
	Schedule Schedule
}

// Attach registers the plan on r. Call it on a fresh engine instance right
// before that instance runs; never on an instance that will run again.
func (p Plan) Attach(ctx context.Context, r Registrar) error {
	if err := p.Vaccine.Validate(); err != nil {
		return err
	}
	v, err := r.AddVaccine(ctx, p.Vaccine)
	if err != nil {
		return fmt.Errorf("add vaccine: %w", err)
	}
	sh, err := r.ScheduleVaccination(ctx, p.Schedule, v)
	if err != nil {
		return fmt.Errorf("schedule vaccination: %w", err)
	}
	if err := r.AttachSchedule(ctx, sh); err != nil {
		return fmt.Errorf("attach schedule: %w", err)
	}
	return nil
}

// Default is the rollout used by the research runs: one dose protecting
// half against infection and symptoms and 90% against severe disease.
func Default() Plan {
	schedule, _ := NewSchedule(map[params.AgeBand]float64{
		params.Age0to9:   0,
		params.Age10to19: 0.42,
		params.Age20to29: 0.59,
		params.Age30to39: 0.61,
		params.Age40to49: 0.69,
		params.Age50to59: 0.77,
		params.Age60to69: 0.83,
		params.Age70to79: 0.86,
		params.Age80Plus: 0.83,
	})
	return Plan{
		Vaccine: Spec{
			FullEfficacy:     []float64{0.5},
			SymptomEfficacy:  []float64{0.5},
			SevereEfficacy:   []float64{0.9},
			TimeToProtect:    14,
			ProtectionPeriod: 365,
		},
		Schedule: schedule,
	}
}
