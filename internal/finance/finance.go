// Package finance settles one cycle's revenue against wear.
package finance

import "github.com/roach88/hydroexec/internal/ir"

// DefaultWearRateEur is the wear cost of one settlement window at a
// synergy factor of 1.
const DefaultWearRateEur = 50.0

// Settlement is the economic result of a cycle. NetProfitEur is not clamped:
// a negative value is itself a decision-relevant signal.
type Settlement struct {
	GrossProfitEur float64
	WearDebtEur    float64
	NetProfitEur   float64
	// ROIPct is net profit per unit of wear debt, in percent. Zero when
	// there is no wear.
	ROIPct float64
	// Guarded is true when a non-finite input was replaced by 0.
	Guarded bool
}

// Settle combines energy revenue, ancillary revenue and wear cost.
func Settle(grossRevenue, ancillaryRevenue, wearCost float64) Settlement {
	var s Settlement
	guard := func(v float64) float64 {
		v, ok := ir.Finite(v, 0)
		if !ok {
			s.Guarded = true
		}
		return v
	}
	gross := guard(grossRevenue) + guard(ancillaryRevenue)
	wear := guard(wearCost)

	s.GrossProfitEur = gross
	s.WearDebtEur = wear
	s.NetProfitEur = gross - wear
	s.ROIPct, _ = ir.SafeDiv(s.NetProfitEur*100, wear, 0)
	return s
}

// WearCost is the wear debt of one settlement window.
func WearCost(rateEur, synergy, hours float64) float64 {
	v, _ := ir.Finite(rateEur*synergy*hours, 0)
	return v
}
