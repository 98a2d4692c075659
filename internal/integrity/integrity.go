// Package integrity tracks accumulated mechanical stress per unit and
// derives a 0..100 integrity score from it.
//
// The model is monotonic: the score never rises between maintenance events.
// Stress accrues as window hours weighted by the square of vibration
// relative to nominal, so running at twice nominal vibration ages the unit
// four times as fast.
package integrity

import (
	"math"

	"github.com/roach88/hydroexec/internal/ir"
)

// Params tunes the wear model.
type Params struct {
	// NominalVibrationMmS is the vibration level at which one operating
	// hour adds one stress hour.
	NominalVibrationMmS float64
	// StressScaleHours is the e-folding constant of stress damage.
	StressScaleHours float64
	// AgeHorizonHours is the operating age at which the full age penalty
	// applies.
	AgeHorizonHours float64
	// AgePenalty is the score deducted at AgeHorizonHours.
	AgePenalty float64
}

// DefaultParams returns the standard wear model.
func DefaultParams() Params {
	return Params{
		NominalVibrationMmS: 2.0,
		StressScaleHours:    2000,
		AgeHorizonHours:     200000,
		AgePenalty:          20,
	}
}

// MaxStressHours caps the stress accumulator. Far past this point the
// stress term has already taken the whole score, and the cap keeps the
// accumulator finite under extreme inputs.
const MaxStressHours = 1e15

// Thresholds are the integrity levels that trigger downstream actions.
type Thresholds struct {
	Rebalance   float64 // fleet redistribution below this
	PartRequest float64 // spare-part request when first crossed
	Floor       float64 // throttle below this even without other protections
}

// DefaultThresholds returns the standard trigger levels.
func DefaultThresholds() Thresholds {
	return Thresholds{Rebalance: 80, PartRequest: 60, Floor: 40}
}

// Monitor owns the IntegrityState of one unit.
//
// Monitor is not safe for concurrent use; each unit's executive owns one.
type Monitor struct {
	params Params
	state  ir.IntegrityState
}

// NewMonitor creates a monitor starting at the given integrity score.
// An initial score outside (0, 100] starts the unit at 100.
func NewMonitor(p Params, initialScore float64) *Monitor {
	if !(initialScore > 0 && initialScore <= 100) {
		initialScore = 100
	}
	return &Monitor{
		params: p,
		state:  ir.IntegrityState{IntegrityScore: initialScore},
	}
}

// SetParams replaces the wear model. Accumulated stress is kept.
func (m *Monitor) SetParams(p Params) { m.params = p }

// State returns the current integrity state.
func (m *Monitor) State() ir.IntegrityState { return m.state }

// Update accrues one window of stress and returns the new state.
// Negative or non-finite inputs are treated as zero; clean is false when
// that happened.
func (m *Monitor) Update(operatingHours, vibration, windowHours float64) (ir.IntegrityState, bool) {
	clean := true
	sanitize := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			clean = false
			return 0
		}
		return v
	}
	operatingHours = sanitize(operatingHours)
	vibration = sanitize(vibration)
	windowHours = sanitize(windowHours)

	ratio, ok := ir.SafeDiv(vibration, m.params.NominalVibrationMmS, 0)
	if !ok {
		clean = false
	}
	added := windowHours * ratio * ratio
	if math.IsNaN(added) {
		// Zero window times an overflowed ratio.
		added = 0
	}
	m.state.CumulativeStressHours = math.Min(m.state.CumulativeStressHours+added, MaxStressHours)

	agePart, ok := ir.SafeDiv(operatingHours, m.params.AgeHorizonHours, 0)
	if !ok {
		clean = false
	}
	stressPart, ok := ir.SafeDiv(m.state.CumulativeStressHours, m.params.StressScaleHours, 0)
	if !ok {
		clean = false
	}

	score := 100 -
		m.params.AgePenalty*math.Min(1, agePart) -
		100*(1-math.Exp(-stressPart))
	score = ir.Clamp(score, 0, 100)
	if score < m.state.IntegrityScore {
		m.state.IntegrityScore = score
	}
	return m.state, clean
}

// CrossedBelow reports whether a threshold was crossed downward between
// two scores.
func CrossedBelow(threshold, before, after float64) bool {
	return before >= threshold && after < threshold
}
