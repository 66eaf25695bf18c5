package policy

import (
	"fmt"
	"strings"

	"episweep/domain/core"
	"episweep/domain/params"
)

// AdoptionMode selects how a target adoption rate is spread over age bands.
// Both modes are in use by existing experiments and give different results.
type AdoptionMode int

const (
	// AdoptionByAgeBand scales the phone-ownership curve so that its
	// population-weighted total matches the rate.
	AdoptionByAgeBand AdoptionMode = iota
	// AdoptionFlat sets every band to the rate.
	AdoptionFlat
)

func (m AdoptionMode) String() string {
	switch m {
	case AdoptionByAgeBand:
		return "age_band"
	case AdoptionFlat:
		return "flat"
	default:
		return fmt.Sprintf("AdoptionMode(%d)", int(m))
	}
}

// ParseAdoptionMode accepts "age_band" (alias "phone") and "flat".
func ParseAdoptionMode(s string) (AdoptionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "age_band", "phone", "":
		return AdoptionByAgeBand, nil
	case "flat":
		return AdoptionFlat, nil
	default:
		return 0, core.NewConfigurationError("adoption_mode", fmt.Sprintf("unknown mode %q", s))
	}
}

// ScaleAppAdoption sets every app_users_fraction_<band> key for the target
// adoption rate in [0, 1].
func ScaleAppAdoption(rate float64, mode AdoptionMode) Arm {
	name := fmt.Sprintf("adoption:%s:%g", mode, rate)
	return NewArm(name, func(c params.Configuration) (params.Configuration, error) {
		if rate < 0 || rate > 1 {
			return params.Configuration{}, core.NewConfigurationError("app_users_fraction",
				fmt.Sprintf("adoption rate %g outside [0, 1]", rate))
		}
		overrides := make(map[string]float64, len(params.AgeBands))
		for _, band := range params.AgeBands {
			switch mode {
			case AdoptionByAgeBand:
				overrides[params.AppUsersFractionKey(band)] = params.AdoptionCurve[band] * rate / params.AdoptionReferenceTotal
			case AdoptionFlat:
				overrides[params.AppUsersFractionKey(band)] = rate
			default:
				return params.Configuration{}, core.NewConfigurationError("adoption_mode", mode.String())
			}
		}
		return c.With(overrides), nil
	})
}

// SetCautionProfile assigns caution multipliers by social distance. Four
// values cover distances 1-4. Three values cover distances 2-4 and leave the
// distance-1 multiplier as it is.
func SetCautionProfile(multipliers ...float64) Arm {
	ms := append([]float64(nil), multipliers...)
	return NewArm(fmt.Sprintf("caution:%v", ms), func(c params.Configuration) (params.Configuration, error) {
		if len(ms) < 3 || len(ms) > params.MaxCautionDistance {
			return params.Configuration{}, core.NewConfigurationError("novid_soft_multiplier",
				fmt.Sprintf("caution profile needs 3 or 4 multipliers, got %d", len(ms)))
		}
		first := params.MaxCautionDistance - len(ms) + 1
		overrides := make(map[string]float64, len(ms))
		for i, m := range ms {
			if m < 0 {
				return params.Configuration{}, core.NewConfigurationError(params.CautionMultiplierKey(first+i),
					fmt.Sprintf("negative multiplier %g", m))
			}
			overrides[params.CautionMultiplierKey(first+i)] = m
		}
		return c.With(overrides), nil
	})
}

// DisableManualTracing neutralizes the distance-3 and distance-4 caution
// multipliers and switches manual contact tracing off by moving its start
// past the end of any run.
func DisableManualTracing() Arm {
	return NewArm("disable_manual_tracing", func(c params.Configuration) (params.Configuration, error) {
		return c.With(map[string]float64{
			params.CautionMultiplierKey(3): 1.0,
			params.CautionMultiplierKey(4): 1.0,
			params.KeyManualTraceOn:        0,
			params.KeyManualTraceTimeOn:    params.ManualTracingDisabledTime,
		}), nil
	})
}

// Seed sets the engine RNG seed.
func Seed(seed int64) Arm {
	return NewArm(fmt.Sprintf("seed:%d", seed), func(c params.Configuration) (params.Configuration, error) {
		return c.With(map[string]float64{params.KeyRNGSeed: float64(seed)}), nil
	})
}

// InfectiousRate sets transmissibility.
func InfectiousRate(r float64) Arm {
	return NewArm(fmt.Sprintf("infectious_rate:%g", r), func(c params.Configuration) (params.Configuration, error) {
		if r < 0 {
			return params.Configuration{}, core.NewConfigurationError(params.KeyInfectiousRate,
				fmt.Sprintf("negative rate %g", r))
		}
		return c.With(map[string]float64{params.KeyInfectiousRate: r}), nil
	})
}
