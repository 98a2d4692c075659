package ir

import "math"

// Finite returns v, or fallback with ok=false when v is NaN or infinite.
func Finite(v, fallback float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback, false
	}
	return v, true
}

// SafeDiv divides num by den. A zero or non-finite denominator, or a
// non-finite result, yields fallback with ok=false.
func SafeDiv(num, den, fallback float64) (float64, bool) {
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return fallback, false
	}
	return Finite(num/den, fallback)
}

// Clamp bounds v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
