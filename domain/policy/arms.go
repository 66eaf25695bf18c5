package policy

import (
	"fmt"
	"strings"

	"episweep/domain/core"
)

// Arm names used by the transmissibility sweep.
const (
	ArmNovid    = "novid"
	ArmNonNovid = "non_novid"
)

// Novid keeps exposure notification on with full caution at distances 2
// and 3 and none at distance 4.
func Novid() Arm {
	arm := SetCautionProfile(0.0, 0.0, 1.0)
	arm.Name = ArmNovid
	return arm
}

// NonNovid turns exposure-notification caution and manual tracing off.
func NonNovid() Arm {
	arm := DisableManualTracing()
	arm.Name = ArmNonNovid
	return arm
}

// ArmByName resolves an arm name used in grid definitions: "novid",
// "non_novid", "identity", or "caution_<profile>".
func ArmByName(name string) (Arm, error) {
	switch {
	case name == ArmNovid:
		return Novid(), nil
	case name == ArmNonNovid:
		return NonNovid(), nil
	case name == "identity":
		return Identity(), nil
	case strings.HasPrefix(name, "caution_"):
		p, err := LookupCaution(strings.TrimPrefix(name, "caution_"))
		if err != nil {
			return Arm{}, err
		}
		return p.Arm(), nil
	default:
		return Arm{}, core.NewConfigurationError("arm", fmt.Sprintf("unknown policy arm %q", name))
	}
}
