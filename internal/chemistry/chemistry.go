// Package chemistry combines erosion and corrosion indicators into the
// synergy factor that scales wear cost.
package chemistry

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/hydroexec/internal/ir"
)

// DefaultBaselineFactor is the extra wear applied when erosion and corrosion
// act together.
const DefaultBaselineFactor = 0.05

// pH bands. Corrosion is neutral inside [neutralLow, neutralHigh]; alerts
// fire outside [alertLow, alertHigh].
const (
	neutralLow  = 6.5
	neutralHigh = 8.5
	alertLow    = 6.0
	alertHigh   = 9.0
)

// Result is the output of Synergy.
type Result struct {
	Factor float64
	// Alert is empty when no boundary was crossed. An impossible pH
	// reading shows up here as PH_SENSOR_INVALID.
	Alert string
}

// Synergy computes the wear multiplier for the current water chemistry.
// A pH of 0 means the probe reported nothing and counts as neutral.
// Synergy never fails; bad inputs degrade to the erosion-only factor.
func Synergy(erosion ir.ErosionStatus, ph, baselineFactor float64) Result {
	if math.IsNaN(baselineFactor) || math.IsInf(baselineFactor, 0) || baselineFactor < 0 {
		baselineFactor = DefaultBaselineFactor
	}

	var alerts []string
	e := erosionMultiplier(erosion.Severity)
	if erosion.Severity == ir.ErosionHigh || erosion.Severity == ir.ErosionExtreme {
		alerts = append(alerts, fmt.Sprintf("EROSION_%s: sediment %.0f ppm", erosion.Severity, erosion.SedimentPPM))
	}

	c := 1.0
	switch {
	case ph == 0:
	case math.IsNaN(ph) || math.IsInf(ph, 0) || ph < 0 || ph > 14:
		alerts = append(alerts, "PH_SENSOR_INVALID")
	default:
		c = corrosionMultiplier(ph)
		if ph < alertLow {
			alerts = append(alerts, fmt.Sprintf("ACIDIC_WATER: pH %.2f", ph))
		} else if ph > alertHigh {
			alerts = append(alerts, fmt.Sprintf("ALKALINE_WATER: pH %.2f", ph))
		}
	}

	res := Result{Factor: e * c, Alert: strings.Join(alerts, "; ")}
	if e > 1 && c > 1 {
		res.Factor *= 1 + baselineFactor
	}
	return res
}

func erosionMultiplier(s ir.ErosionSeverity) float64 {
	switch s {
	case ir.ErosionLow:
		return 1.1
	case ir.ErosionModerate:
		return 1.3
	case ir.ErosionHigh:
		return 1.6
	case ir.ErosionExtreme:
		return 2.0
	default:
		return 1.0
	}
}

func corrosionMultiplier(ph float64) float64 {
	switch {
	case ph < neutralLow:
		return 1 + (neutralLow-ph)*0.25
	case ph > neutralHigh:
		return 1 + (ph-neutralHigh)*0.15
	default:
		return 1.0
	}
}
