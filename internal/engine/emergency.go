package engine

import (
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/permission"
)

// stop ends the cycle in the emergency state.
//
// Every emergency decision has the same shape: zero load, zero health, mode
// STOP, tier READ_ONLY, and a protection list led by EMERGENCY_SHUTDOWN and
// the reason code. Source and Reason keep a liveness stop distinguishable
// from a physics stop. The alert goes out when the unit enters the
// emergency or its reason changes, not on every stopped cycle.
func (x *Executive) stop(c *cycle, src ir.FaultSource, reason ir.ReasonCode, detail string, verdict ir.Verdict) Outcome {
	c.trace.enter(StageEmergency)

	d := ir.ExecutiveDecision{
		UnitID:            c.t.UnitID,
		Seq:               c.seq,
		CycleID:           c.id,
		SampleTime:        c.t.Timestamp,
		TargetLoadMw:      0,
		MasterHealthScore: 0,
		ActiveProtections: []string{string(ir.ProtectEmergencyShutdown), string(reason)},
		Financials:        ir.Financials{Mode: ir.ModeStop},
		OperatorMessage:   emergencyMessage(reason, detail),
		Emergency:         &ir.Emergency{Source: src, Reason: reason, Detail: detail},
		Verdict:           verdict,
		Integrity:         x.monitor.State(),
		Replay:            c.md.IsReplay,
	}
	d = permission.Sanitize(d, ir.TierReadOnly)

	if x.stopped != reason {
		c.emit(ir.OutboundEvent{
			Kind: ir.EventAlert,
			Alert: &ir.Alert{
				Title:    string(ir.ProtectEmergencyShutdown),
				Severity: ir.SeverityCritical,
				Value:    0,
				Reason:   string(reason) + ": " + detail,
			},
		})
	}
	x.stopped = reason
	x.lowHealth = true
	x.audit(c, d)

	return Outcome{Decision: d, Events: c.out, Stages: c.trace.stages}
}
