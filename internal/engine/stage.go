package engine

// Stage is one step of the cycle state machine. Every cycle moves forward
// through the stages once; Emergency is terminal and reachable from any
// stage up to PhysicsValidated.
type Stage string

const (
	StageInit             Stage = "INIT"
	StageLivenessChecked  Stage = "LIVENESS_CHECKED"
	StageTruthReconciled  Stage = "TRUTH_RECONCILED"
	StagePhysicsValidated Stage = "PHYSICS_VALIDATED"
	StageStrategySelected Stage = "STRATEGY_SELECTED"
	StageOverlaid         Stage = "OVERLAID"
	StageCoordinated      Stage = "COORDINATED"
	StageGated            Stage = "GATED"
	StageSettled          Stage = "SETTLED"
	StageEmitted          Stage = "EMITTED"
	StageEmergency        Stage = "EMERGENCY"
)

// nominalPath is the stage sequence of a cycle that does not stop.
var nominalPath = []Stage{
	StageInit,
	StageLivenessChecked,
	StageTruthReconciled,
	StagePhysicsValidated,
	StageStrategySelected,
	StageOverlaid,
	StageCoordinated,
	StageGated,
	StageSettled,
	StageEmitted,
}

// trace records the stages a cycle passed through.
type trace struct {
	stages []Stage
}

func newTrace() *trace {
	return &trace{stages: append(make([]Stage, 0, len(nominalPath)), StageInit)}
}

func (t *trace) enter(s Stage) {
	t.stages = append(t.stages, s)
}
