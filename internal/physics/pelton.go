package physics

import (
	"fmt"
	"math"

	"github.com/roach88/hydroexec/internal/ir"
)

// PeltonParams covers needle efficiency, water hammer and nozzle count.
type PeltonParams struct {
	OptimalNeedlePct   float64
	OffDesignPct       float64
	NozzleClosingTimeS float64
	// SurgeTrip and SurgeBlock bound the jet rate change divided by the
	// closing time.
	SurgeTrip  float64
	SurgeBlock float64
	MaxNozzles int
}

type peltonGuard struct {
	r ir.PeltonReading
	p PeltonParams
}

func (peltonGuard) Family() ir.TurbineFamily { return ir.FamilyPelton }

func (g peltonGuard) EfficiencyDeviation() Deviation {
	dev := math.Abs(g.r.NeedlePositionPct - g.p.OptimalNeedlePct)
	d := Deviation{Deviation: dev, Limit: g.p.OffDesignPct, OffDesign: dev > g.p.OffDesignPct}
	if d.OffDesign {
		d.Detail = fmt.Sprintf("needle %.1f%% is %.1f%% from optimum", g.r.NeedlePositionPct, dev)
	}
	return d
}

// surge returns the water hammer index. ok is false when the closing time
// cannot be used as a divisor.
func (g peltonGuard) surge() (float64, bool) {
	return ir.SafeDiv(math.Abs(g.r.JetRateChangePctS), g.p.NozzleClosingTimeS, 0)
}

func (g peltonGuard) BoundaryBreach() (Breach, bool) {
	if s, _ := g.surge(); s > g.p.SurgeTrip {
		return Breach{
			Reason: ir.ReasonWaterHammer,
			Detail: fmt.Sprintf("surge index %.1f exceeds %.1f", s, g.p.SurgeTrip),
		}, true
	}
	return Breach{}, false
}

func (g peltonGuard) Advisories() []ir.Protection {
	s, ok := g.surge()
	if !ok {
		return []ir.Protection{{
			Code:     ir.ProtectArithmeticGuard,
			Severity: ir.SeverityAdvisory,
			Detail:   "nozzle closing time unusable, surge index forced to 0",
		}}
	}
	if s > g.p.SurgeBlock {
		return []ir.Protection{{
			Code:     ir.ProtectNozzleBlock,
			Severity: ir.SeverityWarning,
			Detail:   fmt.Sprintf("surge index %.1f", s),
		}}
	}
	return nil
}
