package physics

import (
	"fmt"
	"math"

	"github.com/roach88/hydroexec/internal/ir"
)

// FrancisParams covers best-efficiency gate and draft-tube vortex limits.
type FrancisParams struct {
	BestGatePct       float64
	OffDesignPct      float64
	RopeTripAmplitude float64
	RopeWarnAmplitude float64
	RopeBandLowHz     float64
	RopeBandHighHz    float64
}

type francisGuard struct {
	r ir.FrancisReading
	p FrancisParams
}

func (francisGuard) Family() ir.TurbineFamily { return ir.FamilyFrancis }

func (g francisGuard) EfficiencyDeviation() Deviation {
	dev := math.Abs(g.r.GateOpeningPct - g.p.BestGatePct)
	d := Deviation{Deviation: dev, Limit: g.p.OffDesignPct, OffDesign: dev > g.p.OffDesignPct}
	if d.OffDesign {
		d.Detail = fmt.Sprintf("gate %.1f%% is %.1f%% from best efficiency", g.r.GateOpeningPct, dev)
	}
	return d
}

func (g francisGuard) inRopeBand() bool {
	f := g.r.VortexFrequencyHz
	return f >= g.p.RopeBandLowHz && f <= g.p.RopeBandHighHz
}

// BoundaryBreach trips on a draft-tube vortex rope: high amplitude inside
// the rope frequency band.
func (g francisGuard) BoundaryBreach() (Breach, bool) {
	if g.r.DraftTubeVortexAmplitude > g.p.RopeTripAmplitude && g.inRopeBand() {
		return Breach{
			Reason: ir.ReasonVortexRope,
			Detail: fmt.Sprintf("vortex amplitude %.2f at %.1f Hz", g.r.DraftTubeVortexAmplitude, g.r.VortexFrequencyHz),
		}, true
	}
	return Breach{}, false
}

func (g francisGuard) Advisories() []ir.Protection {
	if g.r.DraftTubeVortexAmplitude > g.p.RopeWarnAmplitude {
		return []ir.Protection{{
			Code:     ir.ProtectVortexWarning,
			Severity: ir.SeverityWarning,
			Detail:   fmt.Sprintf("draft tube amplitude %.2f", g.r.DraftTubeVortexAmplitude),
		}}
	}
	return nil
}
