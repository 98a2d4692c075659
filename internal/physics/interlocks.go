package physics

import (
	"fmt"

	"github.com/roach88/hydroexec/internal/ir"
)

// InterlockParams are the family-independent trip limits.
type InterlockParams struct {
	OverspeedPct     float64
	VibrationTripMmS float64
}

// CheckInterlocks evaluates the common hard interlocks. They share the
// physics breach category: any trip is fatal for the cycle.
func CheckInterlocks(t ir.Telemetry, p InterlockParams) (Breach, bool) {
	switch {
	case t.EStop:
		return Breach{Reason: ir.ReasonEStop, Detail: "emergency stop engaged"}, true
	case p.OverspeedPct > 0 && t.SpeedPct >= p.OverspeedPct:
		return Breach{Reason: ir.ReasonOverspeed, Detail: fmt.Sprintf("speed %.1f%% of rated", t.SpeedPct)}, true
	case p.VibrationTripMmS > 0 && t.VibrationMmS > p.VibrationTripMmS:
		return Breach{Reason: ir.ReasonVibrationTrip, Detail: fmt.Sprintf("vibration %.2f mm/s", t.VibrationMmS)}, true
	}
	return Breach{}, false
}
