// Package market selects the operating strategy from price and grid
// signals.
//
// Rules are evaluated in a fixed priority order and the first match wins:
//
//	GRID_SUPPORT > ENVIRONMENTAL_CEILING > ASSET_CONSERVATION > PRICE_MAX > BALANCED
//
// Safety and interlock conditions are handled upstream and never reach the
// selector.
package market

import (
	"fmt"

	"github.com/roach88/hydroexec/internal/ir"
)

// Rule names the branch that fired.
type Rule string

const (
	RuleGridSupport       Rule = "GRID_SUPPORT"
	RuleEnvironmental     Rule = "ENVIRONMENTAL_CEILING"
	RuleAssetConservation Rule = "ASSET_CONSERVATION"
	RulePriceMax          Rule = "PRICE_MAX"
	RuleBalanced          Rule = "BALANCED"
)

// Params tunes the rule table.
type Params struct {
	GridSupportFraction   float64
	ConservationIntegrity float64
	ConservationPrice     float64
	MaxPriceThreshold     float64
	BalancedFraction      float64
	// SettlementHours is the accounting window revenue is quoted over.
	SettlementHours float64
}

// DefaultParams returns the standard rule table.
func DefaultParams() Params {
	return Params{
		GridSupportFraction:   0.8,
		ConservationIntegrity: 60,
		ConservationPrice:     30,
		MaxPriceThreshold:     80,
		BalancedFraction:      0.7,
		SettlementHours:       1,
	}
}

// Inputs is what the selector sees for one cycle.
type Inputs struct {
	Signals    ir.MarketSignals
	Integrity  float64
	CapacityMw float64
}

// Strategy is the selector's output.
type Strategy struct {
	Rule               Rule
	Mode               ir.Mode
	TargetLoadFraction float64
	// EstimatedRevenueEur is the energy revenue at the selected fraction
	// before any overlay.
	EstimatedRevenueEur float64
	AncillaryRevenueEur float64
	Reason              string
}

// Selector evaluates the rule table.
type Selector struct {
	p Params
}

// NewSelector creates a selector with the given parameters.
func NewSelector(p Params) Selector {
	return Selector{p: p}
}

// Params returns the selector parameters.
func (s Selector) Params() Params { return s.p }

// Decide applies the first matching rule.
func (s Selector) Decide(in Inputs) Strategy {
	sig := in.Signals
	var st Strategy
	switch {
	case sig.GridSupportRequested:
		st = Strategy{
			Rule:               RuleGridSupport,
			Mode:               ir.ModeRun,
			TargetLoadFraction: s.p.GridSupportFraction,
			Reason:             fmt.Sprintf("Grid support: holding %.0f%% reserve for FCR.", 100*(1-s.p.GridSupportFraction)),
		}
		st.AncillaryRevenueEur = s.Ancillary(st.TargetLoadFraction, in.CapacityMw, sig)
	case sig.EnvironmentalCeiling > 0 && sig.EnvironmentalCeiling < 1:
		st = Strategy{
			Rule:               RuleEnvironmental,
			Mode:               ir.ModeRun,
			TargetLoadFraction: sig.EnvironmentalCeiling,
			Reason:             fmt.Sprintf("Environmental ceiling at %.0f%%.", 100*sig.EnvironmentalCeiling),
		}
	case in.Integrity < s.p.ConservationIntegrity && sig.PriceEurPerMwh < s.p.ConservationPrice:
		st = Strategy{
			Rule:               RuleAssetConservation,
			Mode:               ir.ModeStandby,
			TargetLoadFraction: 0,
			Reason:             fmt.Sprintf("Asset conservation: integrity %.1f at %.2f EUR/MWh.", in.Integrity, sig.PriceEurPerMwh),
		}
	case sig.PriceEurPerMwh >= s.p.MaxPriceThreshold || sig.Demand == ir.DemandHigh:
		st = Strategy{
			Rule:               RulePriceMax,
			Mode:               ir.ModeRun,
			TargetLoadFraction: 1,
			Reason:             fmt.Sprintf("Price maximization at %.2f EUR/MWh.", sig.PriceEurPerMwh),
		}
	default:
		st = Strategy{
			Rule:               RuleBalanced,
			Mode:               ir.ModeRun,
			TargetLoadFraction: s.p.BalancedFraction,
			Reason:             "Balanced operation.",
		}
	}
	st.EstimatedRevenueEur = s.Revenue(st.TargetLoadFraction*in.CapacityMw, sig)
	return st
}

// Revenue is the energy plus carbon credit value of running loadMw over one
// settlement window. Non-finite inputs yield 0.
func (s Selector) Revenue(loadMw float64, sig ir.MarketSignals) float64 {
	energy := loadMw * s.p.SettlementHours
	v, _ := ir.Finite(energy*sig.PriceEurPerMwh+energy*sig.CarbonCreditEur, 0)
	return v
}

// Ancillary is the frequency containment reserve value of the capacity held
// back from generation.
func (s Selector) Ancillary(fraction, capacityMw float64, sig ir.MarketSignals) float64 {
	reserve := ir.Clamp(1-fraction, 0, 1) * capacityMw
	v, _ := ir.Finite(sig.FcrPriceEurPerMw*reserve*s.p.SettlementHours, 0)
	return v
}
