package truth

import "github.com/roach88/hydroexec/internal/ir"

// DefaultAlpha is the smoothing factor of the learned baseline.
const DefaultAlpha = 0.2

// Baseline is an exponentially weighted moving average of reconciled
// values. It stands in for an explicit prediction when telemetry carries
// none.
//
// Baseline is not safe for concurrent use; each unit's executive owns one.
type Baseline struct {
	alpha  float64
	value  float64
	primed bool
}

// NewBaseline creates an empty baseline. Alpha outside (0, 1] falls back to
// DefaultAlpha.
func NewBaseline(alpha float64) *Baseline {
	if !(alpha > 0 && alpha <= 1) {
		alpha = DefaultAlpha
	}
	return &Baseline{alpha: alpha}
}

// Predict returns the current baseline. Before the first observation it
// returns the mean of whichever readings are finite.
func (b *Baseline) Predict(a, c ir.SensorReading) float64 {
	if b.primed {
		return b.value
	}
	return fallbackPrediction(a.Value, isFinite(a.Value), c.Value, isFinite(c.Value))
}

// Observe folds a trusted value into the baseline. Non-finite values are
// ignored.
func (b *Baseline) Observe(v float64) {
	if !isFinite(v) {
		return
	}
	if !b.primed {
		b.value = v
		b.primed = true
		return
	}
	b.value = b.alpha*v + (1-b.alpha)*b.value
}

// Value returns the baseline and whether it has seen any observation.
func (b *Baseline) Value() (float64, bool) {
	return b.value, b.primed
}
