package physics

import (
	"fmt"
	"math"

	"github.com/roach88/hydroexec/internal/ir"
)

// barPerMetre is the hydrostatic pressure of one metre of fresh water.
const barPerMetre = 0.0981

// KaplanParams covers the cam curve and the hub seal.
type KaplanParams struct {
	// Ideal blade angle is CamSlope * gate + CamOffsetDeg.
	CamSlope           float64
	CamOffsetDeg       float64
	OffCamToleranceDeg float64
	// HubDepthM is the hub depth below tailwater.
	HubDepthM         float64
	DefaultTailwaterM float64
	SealMarginBar     float64
}

type kaplanGuard struct {
	r ir.KaplanReading
	p KaplanParams
}

func (kaplanGuard) Family() ir.TurbineFamily { return ir.FamilyKaplan }

func (g kaplanGuard) EfficiencyDeviation() Deviation {
	ideal := g.p.CamSlope*g.r.GateOpeningPct + g.p.CamOffsetDeg
	dev := math.Abs(g.r.BladeAngleDeg - ideal)
	d := Deviation{Deviation: dev, Limit: g.p.OffCamToleranceDeg, OffDesign: dev > g.p.OffCamToleranceDeg}
	if d.OffDesign {
		d.Detail = fmt.Sprintf("blade %.1f° off cam by %.1f°", g.r.BladeAngleDeg, dev)
	}
	return d
}

// WaterPressureBar is the water pressure at the hub seal.
func (g kaplanGuard) WaterPressureBar() float64 {
	tail := g.r.TailwaterLevelM
	if tail <= 0 {
		tail = g.p.DefaultTailwaterM
	}
	return (tail + g.p.HubDepthM) * barPerMetre
}

func (g kaplanGuard) differential() float64 {
	return g.r.HubOilPressureBar - g.WaterPressureBar()
}

// BoundaryBreach trips when water pressure exceeds hub oil pressure: the
// seal would let oil escape into the river.
func (g kaplanGuard) BoundaryBreach() (Breach, bool) {
	if diff := g.differential(); diff < 0 {
		return Breach{
			Reason: ir.ReasonHubLeak,
			Detail: fmt.Sprintf("hub oil %.2f bar below water %.2f bar", g.r.HubOilPressureBar, g.WaterPressureBar()),
		}, true
	}
	return Breach{}, false
}

func (g kaplanGuard) Advisories() []ir.Protection {
	if diff := g.differential(); diff >= 0 && diff < g.p.SealMarginBar {
		return []ir.Protection{{
			Code:     ir.ProtectHubSealMargin,
			Severity: ir.SeverityWarning,
			Detail:   fmt.Sprintf("oil-to-water margin %.2f bar", diff),
		}}
	}
	return nil
}
