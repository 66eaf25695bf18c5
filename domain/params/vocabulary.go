package params

// perBand lists parameter prefixes that exist once per age band.
var perBand = []string{
	"app_users_fraction_",
	"population_",
	"relative_susceptibility_",
	"hospitalised_fraction_",
	"fraction_asymptomatic_",
	"mild_fraction_",
}

var scalarKeys = []string{
	KeyNTotal, KeyEndTime, KeyRNGSeed, KeyNSeedInfection, KeyNewSeedInfectionRate,
	KeyInfectiousRate, KeySelfQuarantine, KeyMeanTimeToSymptoms, "sd_time_to_symptoms",
	"daily_non_cov_symptoms_rate",

	"household_size_1", "household_size_2", "household_size_3",
	"household_size_4", "household_size_5", "household_size_6",
	"daily_fraction_work", "relative_transmission_household",
	"mild_infectious_factor", "asymptomatic_infectious_factor",
	"mean_work_interactions_child", "mean_work_interactions_adult", "mean_work_interactions_elderly",
	"mean_random_interactions_child", "mean_random_interactions_adult", "mean_random_interactions_elderly",
	"sd_infectiousness_multiplier", "child_network_adults", "elderly_network_adults",
	"mean_time_to_recover", "mean_asymptomatic_to_recovery",

	"test_on_symptoms", "testing_symptoms_time_on", "test_order_wait", "test_result_wait",
	"test_release_on_negative", "trace_on_symptoms", "trace_on_positive",
	"quarantine_on_traced", "tracing_network_depth", "traceable_interaction_fraction",
	"app_turn_on_time", "intervention_start_time", "app_phone_fraction",
	"lockdown_time_on", "lockdown_elderly_time_on",

	"quarantine_length_self", "quarantine_length_traced_symptoms",
	"quarantine_dropout_self", "quarantine_dropout_traced_symptoms",
	"quarantine_dropout_traced_positive", "quarantine_dropout_positive",
	"quarantine_compliance_traced_symptoms", "quarantine_compliance_traced_positive",
	"quarantine_household_on_symptoms", "quarantine_household_on_positive",

	KeyNovidOn, KeySoftQuarantineOn, KeyNovidQuarantineLen, KeyNovidReportManual,
	KeyHouseholdAppAdoption, KeyClusterAppAdoption, "soft_quarantine_household",
	"novid_phone_fraction",

	KeyManualTraceOn, KeyManualTraceTimeOn, "manual_trace_on_hospitalization",
	"manual_trace_on_positive", "manual_trace_n_workers",
	"manual_trace_interviews_per_worker_day", "manual_trace_notifications_per_worker_day",
	"manual_traceable_fraction_household", "manual_traceable_fraction_occupation",
	"manual_traceable_fraction_random", "manual_trace_delay",
}

// Vocabulary returns the set of parameter names the engine recognizes.
func Vocabulary() map[string]struct{} {
	v := make(map[string]struct{}, len(scalarKeys)+len(perBand)*len(AgeBands)+MaxCautionDistance)
	for _, k := range scalarKeys {
		v[k] = struct{}{}
	}
	for _, prefix := range perBand {
		for _, b := range AgeBands {
			v[prefix+string(b)] = struct{}{}
		}
	}
	for d := 1; d <= MaxCautionDistance; d++ {
		v[CautionMultiplierKey(d)] = struct{}{}
	}
	return v
}

// Recognized reports whether key belongs to the vocabulary.
func Recognized(key string) bool {
	_, ok := Vocabulary()[key]
	return ok
}
