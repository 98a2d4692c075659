// Package truth reconciles redundant sensor readings against an independent
// prediction.
package truth

import (
	"math"

	"github.com/roach88/hydroexec/internal/ir"
)

// DefaultTolerance is the agreement band used when the caller supplies none.
const DefaultTolerance = 5.0

// partialConfidence is reported when only one sensor produced a usable value
// and it agrees with the prediction.
const partialConfidence = 50.0

// Reconcile rules on a pair of readings.
//
// Rules, in order:
//  1. A and B agree within tolerance: the one closer to predicted wins
//     (tie goes to A), confidence 100.
//  2. Exactly one of them is within tolerance of predicted: it wins, with
//     confidence scaled by how much smaller its deviation is.
//  3. Both within tolerance of predicted (but not of each other): the
//     closer one wins on the same scale.
//  4. Otherwise the pair is UNCERTAIN with confidence 0 and the predicted
//     value stands in.
//
// Non-finite readings are treated as missing. If both are missing the
// verdict is PREDICTED with confidence 0. Reconcile never panics.
func Reconcile(a, b ir.SensorReading, predicted, tolerance float64) ir.Verdict {
	tolerance = math.Abs(tolerance)
	if math.IsNaN(tolerance) || math.IsInf(tolerance, 0) {
		tolerance = DefaultTolerance
	}

	aOK := isFinite(a.Value)
	bOK := isFinite(b.Value)
	if !isFinite(predicted) {
		predicted = fallbackPrediction(a.Value, aOK, b.Value, bOK)
	}

	switch {
	case !aOK && !bOK:
		return ir.Verdict{Winner: ir.WinnerPredicted, Confidence: 0, Value: predicted}
	case !aOK:
		return single(ir.WinnerB, b.Value, predicted, tolerance)
	case !bOK:
		return single(ir.WinnerA, a.Value, predicted, tolerance)
	}

	da := math.Abs(a.Value - predicted)
	db := math.Abs(b.Value - predicted)

	if math.Abs(a.Value-b.Value) <= tolerance {
		if db < da {
			return ir.Verdict{Winner: ir.WinnerB, Confidence: 100, Value: b.Value}
		}
		return ir.Verdict{Winner: ir.WinnerA, Confidence: 100, Value: a.Value}
	}

	aIn := da <= tolerance
	bIn := db <= tolerance
	switch {
	case aIn && !bIn, aIn && bIn && da <= db:
		return ir.Verdict{Winner: ir.WinnerA, Confidence: scaled(da, db), Value: a.Value}
	case bIn:
		return ir.Verdict{Winner: ir.WinnerB, Confidence: scaled(db, da), Value: b.Value}
	}
	return ir.Verdict{Winner: ir.WinnerUncertain, Confidence: 0, Value: predicted}
}

// scaled maps the winner's deviation relative to the loser's onto 0..100.
func scaled(win, lose float64) float64 {
	if lose <= 0 {
		return 100
	}
	return ir.Clamp(100*(1-win/lose), 0, 100)
}

func single(w ir.Winner, v, predicted, tolerance float64) ir.Verdict {
	if math.Abs(v-predicted) <= tolerance {
		return ir.Verdict{Winner: w, Confidence: partialConfidence, Value: v}
	}
	return ir.Verdict{Winner: ir.WinnerUncertain, Confidence: 0, Value: predicted}
}

func fallbackPrediction(a float64, aOK bool, b float64, bOK bool) float64 {
	switch {
	case aOK && bOK:
		return (a + b) / 2
	case aOK:
		return a
	case bOK:
		return b
	}
	return 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
