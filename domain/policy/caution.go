package policy

import (
	"fmt"
	"sort"
	"strings"

	"episweep/domain/core"
)

// CautionProfile is a named set of caution multipliers, nearest distance first.
type CautionProfile struct {
	Name        string
	Multipliers []float64
}

// Named caution profiles used across experiments.
var (
	CautionDefault         = CautionProfile{"default", []float64{0.125, 0.125, 0.25, 0.5}}
	CautionContactTracing  = CautionProfile{"contact_tracing", []float64{0.125, 0.125, 1.0, 1.0}}
	CautionStrict          = CautionProfile{"strict", []float64{0.0, 0.0, 1.0, 1.0}}
	CautionNone            = CautionProfile{"none", []float64{1.0, 1.0, 1.0, 1.0}}
	CautionSecondDegree    = CautionProfile{"second_degree", []float64{0.125, 1.0, 0.25, 0.5}}
	CautionFirstDegreeOnly = CautionProfile{"first_degree_only", []float64{0.0, 1.0, 1.0, 1.0}}
)

var cautionProfiles = map[string]CautionProfile{
	CautionDefault.Name:         CautionDefault,
	CautionContactTracing.Name:  CautionContactTracing,
	CautionStrict.Name:          CautionStrict,
	CautionNone.Name:            CautionNone,
	CautionSecondDegree.Name:    CautionSecondDegree,
	CautionFirstDegreeOnly.Name: CautionFirstDegreeOnly,
}

// LookupCaution returns the named profile.
func LookupCaution(name string) (CautionProfile, error) {
	p, ok := cautionProfiles[name]
	if !ok {
		return CautionProfile{}, core.NewConfigurationError("caution_profile", fmt.Sprintf("unknown profile %q (known: %s)", name, strings.Join(CautionProfileNames(), ", ")))
	}
	return p, nil
}

// CautionProfileNames lists the registered profile names, sorted.
func CautionProfileNames() []string {
	names := make([]string, 0, len(cautionProfiles))
	for n := range cautionProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Arm returns the transform that applies the profile.
func (p CautionProfile) Arm() Arm {
	arm := SetCautionProfile(p.Multipliers...)
	arm.Name = "caution_" + p.Name
	return arm
}
