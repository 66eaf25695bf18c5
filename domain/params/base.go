package params

// DefaultSeeds is the seed set experiments average over.
var DefaultSeeds = []int64{23649, 36492, 64923, 49236, 92364}

// DefaultInfectiousRate is the delta-variant transmissibility (5.8 * 1.6).
const DefaultInfectiousRate = 5.8 * 1.6

// BaseAdoptionRate is the adoption rate the base configuration's age-band
// curve is scaled to.
const BaseAdoptionRate = 0.5

// Base returns the canonical default configuration every experiment starts
// from. It returns a fresh value on each call.
func Base() Configuration {
	values := map[string]float64{
		KeyNTotal:               100000,
		KeyEndTime:              200,
		KeyRNGSeed:              float64(DefaultSeeds[0]),
		KeyNSeedInfection:       0,
		KeyNewSeedInfectionRate: 1,

		KeySelfQuarantine:     0.8,
		KeyInfectiousRate:     DefaultInfectiousRate,
		KeyMeanTimeToSymptoms: 5.42 + 2,

		KeyNovidOn:                  1,
		KeyHouseholdAppAdoption:     1,
		KeyClusterAppAdoption:       1,
		"soft_quarantine_household": 1,

		"trace_on_symptoms":     1,
		"quarantine_on_traced":  1,
		"tracing_network_depth": 1,
		"app_turn_on_time":      1,

		KeySoftQuarantineOn:     1,
		CautionMultiplierKey(1): 0.125,
		CautionMultiplierKey(2): 0.125,
		CautionMultiplierKey(3): 0.25,
		CautionMultiplierKey(4): 0.5,
		KeyNovidQuarantineLen:   7,

		KeyManualTraceOn:                            1,
		KeyManualTraceTimeOn:                        0,
		"manual_trace_on_hospitalization":           1,
		"manual_trace_on_positive":                  1,
		"manual_trace_n_workers":                    1000000,
		"manual_trace_interviews_per_worker_day":    6,
		"manual_trace_notifications_per_worker_day": 12,
		"manual_traceable_fraction_household":       1.0,
		"manual_traceable_fraction_occupation":      1.0,
		"manual_traceable_fraction_random":          0.0,
		"manual_trace_delay":                        1,

		KeyNovidReportManual: 0.2,
	}
	for _, b := range AgeBands {
		values[AppUsersFractionKey(b)] = AdoptionCurve[b] * BaseAdoptionRate / AdoptionReferenceTotal
	}
	return New(values)
}
