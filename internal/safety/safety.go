// Package safety clamps the market-chosen operating point against live
// protective limits.
package safety

import "github.com/roach88/hydroexec/internal/ir"

// Default overlay constants.
const (
	DefaultVibrationCeilingMmS = 2.0
	DefaultDerate              = 0.8
)

// Overlay holds the clamp constants.
type Overlay struct {
	VibrationCeilingMmS float64
	Derate              float64
}

// DefaultOverlay returns the standard overlay.
func DefaultOverlay() Overlay {
	return Overlay{VibrationCeilingMmS: DefaultVibrationCeilingMmS, Derate: DefaultDerate}
}

// Clamp derates a running unit whose live vibration exceeds the ceiling.
// Only ModeRun is affected; every other mode passes through unchanged.
func (o Overlay) Clamp(mode ir.Mode, fraction, vibration float64) (ir.Mode, float64, bool) {
	if mode == ir.ModeRun && vibration > o.VibrationCeilingMmS {
		return ir.ModeRunThrottled, fraction * o.derate(), true
	}
	return mode, fraction, false
}

// Floor derates a running unit whose integrity is below the hard floor.
// A unit already throttled is left alone so derates never stack.
func (o Overlay) Floor(mode ir.Mode, fraction, integrity, floor float64) (ir.Mode, float64, bool) {
	if mode == ir.ModeRun && integrity < floor {
		return ir.ModeRunThrottled, fraction * o.derate(), true
	}
	return mode, fraction, false
}

func (o Overlay) derate() float64 {
	if o.Derate <= 0 || o.Derate > 1 {
		return DefaultDerate
	}
	return o.Derate
}
