package params

import "fmt"

// Parameter names referenced by the harness. The engine owns the meaning of
// every key; these are the ones the harness reads or overrides directly.
const (
	KeyNTotal               = "n_total"
	KeyEndTime              = "end_time"
	KeyRNGSeed              = "rng_seed"
	KeyNSeedInfection       = "n_seed_infection"
	KeyNewSeedInfectionRate = "new_seed_infection_rate"
	KeyInfectiousRate       = "infectious_rate"
	KeySelfQuarantine       = "self_quarantine_fraction"
	KeyMeanTimeToSymptoms   = "mean_time_to_symptoms"

	KeyNovidOn              = "novid_on"
	KeySoftQuarantineOn     = "soft_quarantine_on"
	KeyNovidQuarantineLen   = "novid_quarantine_length"
	KeyNovidReportManual    = "novid_report_manual_traced"
	KeyManualTraceOn        = "manual_trace_on"
	KeyManualTraceTimeOn    = "manual_trace_time_on"
	KeyHouseholdAppAdoption = "household_app_adoption"
	KeyClusterAppAdoption   = "cluster_app_adoption"
)

// AgeBand names one of the engine's nine ten-year age groups.
type AgeBand string

const (
	Age0to9   AgeBand = "0_9"
	Age10to19 AgeBand = "10_19"
	Age20to29 AgeBand = "20_29"
	Age30to39 AgeBand = "30_39"
	Age40to49 AgeBand = "40_49"
	Age50to59 AgeBand = "50_59"
	Age60to69 AgeBand = "60_69"
	Age70to79 AgeBand = "70_79"
	Age80Plus AgeBand = "80"
)

// AgeBands lists every band youngest first.
var AgeBands = []AgeBand{
	Age0to9, Age10to19, Age20to29, Age30to39, Age40to49,
	Age50to59, Age60to69, Age70to79, Age80Plus,
}

// ParseAgeBand validates s as an age band name.
func ParseAgeBand(s string) (AgeBand, error) {
	for _, b := range AgeBands {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown age band %q", s)
}

// AppUsersFractionKey is the per-band app adoption parameter.
func AppUsersFractionKey(b AgeBand) string {
	return "app_users_fraction_" + string(b)
}

// CautionMultiplierKey is the caution multiplier for social distance d (1-4).
func CautionMultiplierKey(distance int) string {
	return fmt.Sprintf("novid_soft_multiplier_%d", distance)
}

// MaxCautionDistance is the furthest social distance with its own multiplier.
const MaxCautionDistance = 4

// Reference phone-ownership curve used to distribute a target adoption rate
// across age bands; its population-weighted total is AdoptionReferenceTotal.
var AdoptionCurve = map[AgeBand]float64{
	Age0to9:   0.09,
	Age10to19: 0.80,
	Age20to29: 0.97,
	Age30to39: 0.96,
	Age40to49: 0.94,
	Age50to59: 0.86,
	Age60to69: 0.70,
	Age70to79: 0.48,
	Age80Plus: 0.32,
}

const AdoptionReferenceTotal = 0.7227

// ManualTracingDisabledTime pushes manual tracing activation past any run length.
const ManualTracingDisabledTime = 10000
