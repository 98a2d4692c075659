// Package physics holds the turbine-family guards.
//
// Each family exposes the same hooks through Guard: an efficiency deviation
// (off-design is advisory) and a boundary breach check (a breach is fatal
// and sends the cycle to the emergency state). Family dispatch is an
// exhaustive type switch over ir.FamilyReading.
package physics

import (
	"fmt"

	"github.com/roach88/hydroexec/internal/ir"
)

// Deviation is the efficiency hook result.
type Deviation struct {
	Deviation float64
	Limit     float64
	OffDesign bool
	Detail    string
}

// Health maps the deviation onto the 0..100 physics health used by the
// master health score. On-design is 100; off-design loses points in
// proportion to the excess over the limit, floored at 50.
func (d Deviation) Health() float64 {
	if !d.OffDesign {
		return 100
	}
	over, ok := ir.SafeDiv(d.Deviation-d.Limit, d.Limit, 1)
	if !ok {
		return 50
	}
	return ir.Clamp(100-50*over, 50, 100)
}

// Breach is a fatal boundary violation.
type Breach struct {
	Reason ir.ReasonCode
	Detail string
}

func (b Breach) String() string {
	return fmt.Sprintf("%s: %s", b.Reason, b.Detail)
}

// Guard is the per-family physics check bound to one reading.
type Guard interface {
	Family() ir.TurbineFamily
	EfficiencyDeviation() Deviation
	// BoundaryBreach returns ok=false when the unit is within bounds.
	BoundaryBreach() (Breach, bool)
	// Advisories returns non-fatal protections such as seal margin or
	// vortex warnings.
	Advisories() []ir.Protection
}

// Params holds the per-family constants.
type Params struct {
	Francis    FrancisParams
	Kaplan     KaplanParams
	Pelton     PeltonParams
	Interlocks InterlockParams
}

// DefaultParams returns the standard constants for every family.
func DefaultParams() Params {
	return Params{
		Francis: FrancisParams{
			BestGatePct:       85,
			OffDesignPct:      20,
			RopeTripAmplitude: 0.35,
			RopeWarnAmplitude: 0.2,
			RopeBandLowHz:     2,
			RopeBandHighHz:    4,
		},
		Kaplan: KaplanParams{
			CamSlope:           0.5,
			CamOffsetDeg:       0,
			OffCamToleranceDeg: 2,
			HubDepthM:          2,
			DefaultTailwaterM:  10,
			SealMarginBar:      0.3,
		},
		Pelton: PeltonParams{
			OptimalNeedlePct:   80,
			OffDesignPct:       15,
			NozzleClosingTimeS: 0.6,
			SurgeTrip:          20,
			SurgeBlock:         8,
			MaxNozzles:         6,
		},
		Interlocks: InterlockParams{
			OverspeedPct:     115,
			VibrationTripMmS: 8,
		},
	}
}

// WithOverrides applies the non-zero unit overrides.
func (p Params) WithOverrides(o ir.PhysicsOverrides) Params {
	if o.CamSlope != 0 {
		p.Kaplan.CamSlope = o.CamSlope
	}
	if o.CamOffsetDeg != 0 {
		p.Kaplan.CamOffsetDeg = o.CamOffsetDeg
	}
	if o.HubDepthM != 0 {
		p.Kaplan.HubDepthM = o.HubDepthM
	}
	if o.BestGatePct != 0 {
		p.Francis.BestGatePct = o.BestGatePct
	}
	if o.OptimalNeedlePct != 0 {
		p.Pelton.OptimalNeedlePct = o.OptimalNeedlePct
	}
	if o.MaxNozzles != 0 {
		p.Pelton.MaxNozzles = o.MaxNozzles
	}
	if o.NozzleClosingTimeS != 0 {
		p.Pelton.NozzleClosingTimeS = o.NozzleClosingTimeS
	}
	return p
}

// For binds the guard for the reading's family.
func For(r ir.FamilyReading, p Params) (Guard, error) {
	switch v := r.(type) {
	case ir.FrancisReading:
		return francisGuard{r: v, p: p.Francis}, nil
	case *ir.FrancisReading:
		return francisGuard{r: *v, p: p.Francis}, nil
	case ir.KaplanReading:
		return kaplanGuard{r: v, p: p.Kaplan}, nil
	case *ir.KaplanReading:
		return kaplanGuard{r: *v, p: p.Kaplan}, nil
	case ir.PeltonReading:
		return peltonGuard{r: v, p: p.Pelton}, nil
	case *ir.PeltonReading:
		return peltonGuard{r: *v, p: p.Pelton}, nil
	case nil:
		return nil, fmt.Errorf("no turbine reading")
	default:
		return nil, fmt.Errorf("unsupported turbine reading %T", r)
	}
}
