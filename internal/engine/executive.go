package engine

import (
	"fmt"
	"time"

	"github.com/roach88/hydroexec/internal/chemistry"
	"github.com/roach88/hydroexec/internal/finance"
	"github.com/roach88/hydroexec/internal/fleet"
	"github.com/roach88/hydroexec/internal/integrity"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/liveness"
	"github.com/roach88/hydroexec/internal/market"
	"github.com/roach88/hydroexec/internal/permission"
	"github.com/roach88/hydroexec/internal/physics"
	"github.com/roach88/hydroexec/internal/truth"
)

// Health weights of the master health score.
const (
	weightConfidence = 0.3
	weightIntegrity  = 0.4
	weightPhysics    = 0.3
)

// Outcome is everything one cycle produced: the decision, the events for
// the dispatcher, and the stages the cycle passed through.
type Outcome struct {
	Decision ir.ExecutiveDecision
	Events   []ir.OutboundEvent
	Stages   []Stage
}

// Executive runs the decision cycle for one unit.
//
// An Executive owns the unit's mutable state: the liveness watermark, the
// learned sensor baseline, the integrity monitor, and the seq clock. It is
// not safe for concurrent use; the Engine gives each unit one worker.
type Executive struct {
	unit    ir.UnitSpec
	plantMw float64

	settings Settings
	physics  physics.Params
	selector market.Selector
	coord    fleet.Coordinator

	guard    *liveness.Guard
	baseline *truth.Baseline
	monitor  *integrity.Monitor
	clock    *Clock

	lastSample time.Time
	lowHealth  bool
	// stopped is the reason of the emergency the unit is in, empty while
	// it runs.
	stopped ir.ReasonCode
}

// ExecutiveOption configures an Executive.
type ExecutiveOption func(*Executive)

// WithClock replaces the cycle clock. A clock without a wall keeps the
// wall of the one it replaces.
func WithClock(c *Clock) ExecutiveOption {
	return func(x *Executive) {
		if c.wall == nil {
			c.wall = x.clock.wall
		}
		x.clock = c
	}
}

// WithNow replaces the wall clock used for liveness when the cycle carries
// no simulation time.
func WithNow(now func() time.Time) ExecutiveOption {
	return func(x *Executive) { x.clock.wall = now }
}

// NewExecutive creates the executive of one unit. plantCapacityMw is the
// fleet budget handed to rebalancing; zero means the sum of the snapshot's
// unit capacities.
func NewExecutive(unit ir.UnitSpec, plantCapacityMw float64, s Settings, opts ...ExecutiveOption) *Executive {
	initial := unit.InitialIntegrity
	if initial <= 0 {
		initial = 100
	}
	x := &Executive{
		unit:     unit,
		plantMw:  plantCapacityMw,
		guard:    liveness.NewGuard(s.MaxTelemetryAge),
		baseline: truth.NewBaseline(s.BaselineAlpha),
		monitor:  integrity.NewMonitor(s.Integrity, initial),
		clock:    NewClock(time.Now),
	}
	x.Reconfigure(s)
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Reconfigure swaps the settings. The learned baseline keeps its value and
// its smoothing factor; everything else takes effect on the next cycle.
func (x *Executive) Reconfigure(s Settings) {
	x.settings = s
	x.physics = s.Physics.WithOverrides(x.unit.Physics)
	x.selector = market.NewSelector(s.Market)
	x.coord = fleet.NewCoordinator(s.Fleet)
	x.guard.SetMaxAge(s.MaxTelemetryAge)
	x.monitor.SetParams(s.Integrity)
}

// UnitID returns the unit this executive decides for.
func (x *Executive) UnitID() string { return x.unit.ID }

// Seq returns the seq of the last cycle.
func (x *Executive) Seq() int64 { return x.clock.Current() }

// Status returns the fleet status implied by a decision of this unit.
func (x *Executive) Status(d ir.ExecutiveDecision) ir.UnitStatus {
	cond := ir.ConditionOptimal
	switch {
	case d.IsEmergency():
		cond = ir.ConditionOffline
	case d.Integrity.IntegrityScore < x.settings.Thresholds.Floor:
		cond = ir.ConditionCritical
	case d.MasterHealthScore < x.settings.LowHealth:
		cond = ir.ConditionWarning
	}
	return ir.UnitStatus{
		ID:             x.unit.ID,
		CurrentMw:      d.TargetLoadMw,
		MaxCapacityMw:  x.unit.MaxCapacityMw,
		IntegrityScore: d.Integrity.IntegrityScore,
		Condition:      cond,
	}
}

// cycle carries the per-cycle working state through the stages.
type cycle struct {
	t     ir.Telemetry
	md    ir.Metadata
	seq   int64
	id    string
	tier  ir.PermissionTier
	now   time.Time
	trace *trace
	prot  protections
	out   []ir.OutboundEvent
}

func (c *cycle) emit(ev ir.OutboundEvent) {
	ev.UnitID = c.t.UnitID
	ev.CycleID = c.id
	ev.Seq = c.seq
	c.out = append(c.out, ev)
}

// ExecuteCycle runs one decision cycle for a telemetry sample.
//
// The cycle never fails: a stale sample or a physics breach ends in the
// emergency decision, and every other fault degrades into a protection.
// The returned events are for the dispatcher; the decision does not depend
// on their delivery.
func (x *Executive) ExecuteCycle(t ir.Telemetry, md ir.Metadata) Outcome {
	if t.UnitID == "" {
		t.UnitID = x.unit.ID
	}
	c := x.begin(t, md)

	if r := x.guard.Observe(t, c.now); r.Stale {
		if !md.IsReplay {
			return x.stop(c, ir.SourceLiveness, r.Reason, r.Detail, ir.Verdict{})
		}
		c.prot.raise(ir.ProtectLatencyGuard, ir.SeverityWarning, "MONITOR_ONLY (Replay) %s: %s", r.Reason, r.Detail)
	}
	x.guard.Accept(t.Timestamp)
	window := x.window(t)
	c.trace.enter(StageLivenessChecked)

	verdict := x.reconcile(c)
	c.trace.enter(StageTruthReconciled)

	state := x.accrue(c, window)
	chem := chemistry.Synergy(t.Chemistry.Erosion, t.Chemistry.PH, x.settings.ChemistryBaseline)
	if chem.Alert != "" {
		c.prot.raise(ir.ProtectChemistry, ir.SeverityWarning, "%s", chem.Alert)
	}

	if b, ok := physics.CheckInterlocks(t, x.physics.Interlocks); ok {
		return x.stop(c, ir.SourcePhysics, b.Reason, b.Detail, verdict)
	}
	phys := x.validatePhysics(c)
	if phys.breached {
		return x.stop(c, ir.SourcePhysics, phys.breach.Reason, phys.breach.Detail, verdict)
	}
	c.trace.enter(StagePhysicsValidated)

	strat := x.selector.Decide(market.Inputs{
		Signals:    t.Market,
		Integrity:  state.IntegrityScore,
		CapacityMw: x.unit.MaxCapacityMw,
	})
	c.trace.enter(StageStrategySelected)

	mode, fraction, throttled := x.settings.Overlay.Clamp(strat.Mode, strat.TargetLoadFraction, t.VibrationMmS)
	if throttled {
		kept, _ := ir.SafeDiv(fraction, strat.TargetLoadFraction, 0)
		c.prot.raise(ir.ProtectVibrationCap, ir.SeverityWarning, "Throttled to %.0f%%.", kept*100)
	}
	mode, fraction, floored := x.settings.Overlay.Floor(mode, fraction, state.IntegrityScore, x.settings.Thresholds.Floor)
	if floored {
		c.prot.raise(ir.ProtectIntegrityFloor, ir.SeverityWarning, "integrity %.1f below %.0f", state.IntegrityScore, x.settings.Thresholds.Floor)
	}
	target := fraction * x.unit.MaxCapacityMw
	c.trace.enter(StageOverlaid)

	target, fleetAction := x.coordinate(c, target, state.IntegrityScore)
	c.trace.enter(StageCoordinated)

	if permission.AllowsHardware(c.tier) && mode.IsRunning() && phys.nozzles.Active > 0 {
		c.prot.raise(ir.ProtectPeltonOptimizer, ir.SeverityInfo, "%d nozzles, order %v", phys.nozzles.Active, phys.nozzles.Order)
	}

	health := x.health(verdict.Confidence, state.IntegrityScore, phys.health)
	d := ir.ExecutiveDecision{
		UnitID:            t.UnitID,
		Seq:               c.seq,
		CycleID:           c.id,
		SampleTime:        t.Timestamp,
		TargetLoadMw:      target,
		MasterHealthScore: health,
		PermissionTier:    c.tier,
		FleetAction:       fleetAction,
		Verdict:           verdict,
		Integrity:         state,
		SynergyFactor:     chem.Factor,
		Replay:            md.IsReplay,
	}

	// Settlement figures are computed before gating so a guarded value can
	// still lead the operator message.
	fin := x.settle(c, strat, mode, fraction, target, chem.Factor)
	d.ActiveProtections = c.prot.strings()
	d.OperatorMessage = composeMessage(c.prot, strat.Reason, fleetAction)
	d = permission.Sanitize(d, c.tier)
	c.trace.enter(StageGated)

	d.Financials = fin
	c.trace.enter(StageSettled)

	x.emitCycle(c, d, mode, phys.nozzles)
	c.trace.enter(StageEmitted)

	return Outcome{Decision: d, Events: c.out, Stages: c.trace.stages}
}

func (x *Executive) begin(t ir.Telemetry, md ir.Metadata) *cycle {
	tick := x.clock.Tick(md)
	tier := md.Tier
	if tier == "" {
		tier = x.settings.Tier
	}
	return &cycle{
		t:     t,
		md:    md,
		seq:   tick.Seq,
		id:    cycleID(t.UnitID, tick.Seq, tick.Replay, t),
		tier:  tier.Normalize(),
		now:   tick.At,
		trace: newTrace(),
	}
}

// cycleID is ir.CycleID, falling back to unit and seq for telemetry with
// non-finite values, which has no canonical form.
func cycleID(unitID string, seq int64, replay bool, t ir.Telemetry) string {
	id, err := ir.CycleID(unitID, seq, replay, t)
	if err != nil {
		return fmt.Sprintf("%s-%d", unitID, seq)
	}
	return id
}

// window returns the stress window of the sample in hours and advances the
// last-sample mark.
func (x *Executive) window(t ir.Telemetry) float64 {
	var hours float64
	switch {
	case t.WindowHours > 0:
		hours = t.WindowHours
	case !x.lastSample.IsZero() && t.Timestamp.After(x.lastSample):
		hours = t.Timestamp.Sub(x.lastSample).Hours()
	default:
		hours = x.settings.DefaultWindow.Hours()
	}
	if t.Timestamp.After(x.lastSample) {
		x.lastSample = t.Timestamp
	}
	return hours
}

func (x *Executive) reconcile(c *cycle) ir.Verdict {
	a, b := c.t.SensorA, c.t.SensorB
	predicted := x.baseline.Predict(a, b)
	if c.t.Predicted != nil {
		predicted = *c.t.Predicted
	}
	v := truth.Reconcile(a, b, predicted, x.settings.SensorTolerance)
	switch v.Winner {
	case ir.WinnerA, ir.WinnerB:
		x.baseline.Observe(v.Value)
	case ir.WinnerUncertain:
		c.prot.raise(ir.ProtectSensorDiscord, ir.SeverityWarning,
			"A=%.2f B=%.2f predicted=%.2f, using predicted", a.Value, b.Value, predicted)
	case ir.WinnerPredicted:
		c.prot.raise(ir.ProtectSensorDropout, ir.SeverityWarning, "no usable sensor reading, using predicted %.2f", predicted)
	}
	return v
}

func (x *Executive) accrue(c *cycle, window float64) ir.IntegrityState {
	before := x.monitor.State().IntegrityScore
	state, clean := x.monitor.Update(c.t.OperatingHours, c.t.VibrationMmS, window)
	if !clean {
		c.prot.raise(ir.ProtectArithmeticGuard, ir.SeverityAdvisory, "integrity inputs sanitized")
	}
	if integrity.CrossedBelow(x.settings.Thresholds.PartRequest, before, state.IntegrityScore) {
		c.emit(ir.OutboundEvent{
			Kind: ir.EventMaintenance,
			Maintenance: &ir.MaintenanceRequest{
				Part:           wearPart(x.unit.Family),
				IntegrityScore: state.IntegrityScore,
			},
		})
	}
	return state
}

func wearPart(f ir.TurbineFamily) string {
	switch f {
	case ir.FamilyFrancis:
		return "francis runner"
	case ir.FamilyKaplan:
		return "kaplan hub seal kit"
	case ir.FamilyPelton:
		return "pelton bucket set"
	}
	return "main bearing"
}

type physicsResult struct {
	health   float64
	nozzles  physics.NozzlePlan
	breach   physics.Breach
	breached bool
}

func (x *Executive) validatePhysics(c *cycle) physicsResult {
	res := physicsResult{health: 100}
	reading := c.t.Turbine.Reading
	if reading == nil {
		c.prot.raise(ir.ProtectPhysicsInput, ir.SeverityAdvisory, "no %s reading", x.unit.Family)
		return res
	}
	if x.unit.Family != "" && reading.Family() != x.unit.Family {
		c.prot.raise(ir.ProtectPhysicsInput, ir.SeverityAdvisory, "expected %s reading, got %s", x.unit.Family, reading.Family())
		return res
	}
	g, err := physics.For(reading, x.physics)
	if err != nil {
		c.prot.raise(ir.ProtectPhysicsInput, ir.SeverityAdvisory, "%v", err)
		return res
	}
	if b, ok := g.BoundaryBreach(); ok {
		res.breach, res.breached = b, true
		return res
	}
	c.prot.add(g.Advisories()...)
	if dev := g.EfficiencyDeviation(); dev.OffDesign {
		c.prot.raise(ir.ProtectOffDesign, ir.SeverityAdvisory, "%s", dev.Detail)
		res.health = dev.Health()
	}
	switch p := reading.(type) {
	case ir.PeltonReading:
		res.nozzles = physics.OptimizeNozzles(p, x.physics.Pelton)
	case *ir.PeltonReading:
		res.nozzles = physics.OptimizeNozzles(*p, x.physics.Pelton)
	}
	return res
}

// coordinate rebalances the fleet when this unit is degraded and returns
// the unit's final target and the fleet action.
func (x *Executive) coordinate(c *cycle, target, score float64) (float64, string) {
	if !x.coord.Degraded(score) {
		return target, "Unit Independent."
	}
	snapshot := x.snapshot(c.md.Fleet, target, score)
	budget := x.plantMw
	if budget <= 0 {
		for _, u := range snapshot {
			budget += u.MaxCapacityMw
		}
	}
	plan := x.coord.Rebalance(snapshot, budget)
	if v, ok := plan.PerUnitTargetMw[x.unit.ID]; ok {
		target = v
	}
	c.prot.raise(ir.ProtectFleetRebalance, ir.SeverityAdvisory, "integrity %.1f below %.0f", score, x.coord.Params().Threshold)
	c.emit(ir.OutboundEvent{
		Kind:  ir.EventFleet,
		Fleet: &ir.FleetPlan{PerUnitTargetMw: plan.PerUnitTargetMw, Message: plan.Message},
	})
	return target, plan.Message
}

// snapshot copies the sibling statuses and replaces this unit's entry with
// its current overlay target.
func (x *Executive) snapshot(siblings []ir.UnitStatus, target, score float64) []ir.UnitStatus {
	self := ir.UnitStatus{
		ID:             x.unit.ID,
		CurrentMw:      target,
		MaxCapacityMw:  x.unit.MaxCapacityMw,
		IntegrityScore: score,
		Condition:      ir.ConditionWarning,
	}
	out := make([]ir.UnitStatus, 0, len(siblings)+1)
	out = append(out, self)
	for _, s := range siblings {
		if s.ID != x.unit.ID {
			out = append(out, s)
		}
	}
	return out
}

func (x *Executive) settle(c *cycle, strat market.Strategy, mode ir.Mode, fraction, target, synergy float64) ir.Financials {
	hours := x.settings.settlementHours()
	gross := x.selector.Revenue(target, c.t.Market)
	var ancillary float64
	if strat.Rule == market.RuleGridSupport {
		ancillary = x.selector.Ancillary(fraction, x.unit.MaxCapacityMw, c.t.Market)
	}
	wear := 0.0
	if mode.IsRunning() {
		wear = finance.WearCost(x.settings.WearRateEur, synergy, hours)
	}
	s := finance.Settle(gross, ancillary, wear)
	if s.Guarded {
		c.prot.raise(ir.ProtectArithmeticGuard, ir.SeverityAdvisory, "settlement clamped")
	}
	return ir.Financials{
		GrossProfitEur: s.GrossProfitEur,
		WearDebtEur:    s.WearDebtEur,
		NetProfitEur:   s.NetProfitEur,
		ROIPct:         s.ROIPct,
		Mode:           mode,
	}
}

func (x *Executive) health(confidence, integrityScore, physicsHealth float64) float64 {
	h := weightConfidence*confidence + weightIntegrity*integrityScore + weightPhysics*physicsHealth
	return ir.Clamp(h, 0, 100)
}

// emitCycle appends the audit record and any alert or control events of a
// normal cycle.
func (x *Executive) emitCycle(c *cycle, d ir.ExecutiveDecision, mode ir.Mode, nozzles physics.NozzlePlan) {
	x.stopped = ""
	if d.MasterHealthScore < x.settings.LowHealth {
		if !x.lowHealth {
			c.emit(ir.OutboundEvent{
				Kind: ir.EventAlert,
				Alert: &ir.Alert{
					Title:    "LOW_MASTER_HEALTH",
					Severity: ir.SeverityWarning,
					Value:    d.MasterHealthScore,
					Reason:   d.OperatorMessage,
				},
			})
		}
		x.lowHealth = true
	} else {
		x.lowHealth = false
	}

	if permission.AllowsHardware(d.PermissionTier) && mode.IsRunning() {
		c.emit(ir.OutboundEvent{
			Kind: ir.EventControl,
			Control: &ir.ControlProposal{
				TargetLoadMw:    d.TargetLoadMw,
				ActiveNozzles:   nozzles.Active,
				SequenceOrder:   nozzles.Order,
				VibrationMmS:    c.t.VibrationMmS,
				GridFrequencyHz: c.t.GridFrequencyHz,
			},
		})
	}
	x.audit(c, d)
}

func (x *Executive) audit(c *cycle, d ir.ExecutiveDecision) {
	c.emit(ir.OutboundEvent{
		Kind: ir.EventAudit,
		Audit: &ir.AuditRecord{
			Decision:    d,
			Telemetry:   c.t,
			Tier:        c.tier,
			Fleet:       c.md.Fleet,
			EvaluatedAt: c.now,
		},
	})
}
