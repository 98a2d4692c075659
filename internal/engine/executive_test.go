package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/ir"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func francisUnit() ir.UnitSpec {
	return ir.UnitSpec{ID: "U1", Family: ir.FamilyFrancis, MaxCapacityMw: 100}
}

func kaplanUnit() ir.UnitSpec {
	return ir.UnitSpec{ID: "K1", Family: ir.FamilyKaplan, MaxCapacityMw: 40}
}

func peltonUnit() ir.UnitSpec {
	return ir.UnitSpec{ID: "P1", Family: ir.FamilyPelton, MaxCapacityMw: 60}
}

// sample is a healthy Francis sample at BEP.
func sample(unit string, at time.Time, vibration float64) ir.Telemetry {
	return ir.Telemetry{
		UnitID:          unit,
		Timestamp:       at,
		CommStatus:      ir.CommGood,
		VibrationMmS:    vibration,
		SensorA:         ir.SensorReading{Value: 100, Timestamp: at},
		SensorB:         ir.SensorReading{Value: 100, Timestamp: at},
		SpeedPct:        100,
		GridFrequencyHz: 50,
		Market:          ir.MarketSignals{PriceEurPerMwh: 50, Demand: ir.DemandMed},
		Turbine: ir.TurbineTelemetry{Reading: ir.FrancisReading{
			GateOpeningPct:           85,
			DraftTubeVortexAmplitude: 0.05,
			VortexFrequencyHz:        3,
		}},
	}
}

func newExecutive(unit ir.UnitSpec, now time.Time) *Executive {
	return NewExecutive(unit, 0, DefaultSettings(), WithNow(func() time.Time { return now }))
}

func hasProtection(d ir.ExecutiveDecision, code ir.ProtectionCode) bool {
	for _, p := range d.ActiveProtections {
		if p == string(code) || strings.HasPrefix(p, string(code)+":") {
			return true
		}
	}
	return false
}

func eventsOf(out Outcome, kind ir.EventKind) []ir.OutboundEvent {
	var evs []ir.OutboundEvent
	for _, ev := range out.Events {
		if ev.Kind == kind {
			evs = append(evs, ev)
		}
	}
	return evs
}

func TestExecuteCycle_LowVibrationRuns(t *testing.T) {
	x := newExecutive(francisUnit(), t0)

	out := x.ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{})
	d := out.Decision

	assert.Equal(t, ir.ModeRun, d.Mode())
	assert.False(t, hasProtection(d, ir.ProtectVibrationCap))
	assert.InDelta(t, 70, d.TargetLoadMw, 1e-9)
	assert.Equal(t, ir.TierAdvisory, d.PermissionTier)
	assert.Equal(t, "Balanced operation. | Unit Independent.", d.OperatorMessage)
	assert.Equal(t, nominalPath, out.Stages)
	assert.Nil(t, d.Emergency)
	assert.InDelta(t, 100, d.MasterHealthScore, 0.01)
}

func TestExecuteCycle_HighVibrationThrottles(t *testing.T) {
	calm := newExecutive(francisUnit(), t0).ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{}).Decision
	shaky := newExecutive(francisUnit(), t0).ExecuteCycle(sample("U1", t0, 5.0), ir.Metadata{}).Decision

	assert.Equal(t, ir.ModeRunThrottled, shaky.Mode())
	assert.Less(t, shaky.TargetLoadMw, calm.TargetLoadMw)
	assert.InDelta(t, 56, shaky.TargetLoadMw, 1e-9)
	assert.Contains(t, shaky.ActiveProtections, "VIBRATION_CAP: Throttled to 80%.")
	assert.True(t, strings.HasPrefix(shaky.OperatorMessage, "VIBRATION_CAP"))
}

func TestExecuteCycle_TruthPicksSensorCloserToPrediction(t *testing.T) {
	x := newExecutive(francisUnit(), t0)
	s := sample("U1", t0, 0.05)
	s.SensorA.Value = 150
	s.SensorB.Value = 50
	predicted := 52.0
	s.Predicted = &predicted

	d := x.ExecuteCycle(s, ir.Metadata{}).Decision

	assert.Equal(t, ir.WinnerB, d.Verdict.Winner)
	assert.Equal(t, 50.0, d.Verdict.Value)
	assert.False(t, hasProtection(d, ir.ProtectSensorDiscord))
}

func TestExecuteCycle_SensorDiscordContinues(t *testing.T) {
	x := newExecutive(francisUnit(), t0)
	s := sample("U1", t0, 0.05)
	s.SensorA.Value = 150
	s.SensorB.Value = 50
	predicted := 100.0
	s.Predicted = &predicted

	out := x.ExecuteCycle(s, ir.Metadata{})

	assert.Equal(t, ir.WinnerUncertain, out.Decision.Verdict.Winner)
	assert.True(t, hasProtection(out.Decision, ir.ProtectSensorDiscord))
	assert.Equal(t, StageEmitted, out.Stages[len(out.Stages)-1])
	assert.Greater(t, out.Decision.TargetLoadMw, 0.0)
}

func TestExecuteCycle_KaplanHubLeakStops(t *testing.T) {
	x := newExecutive(kaplanUnit(), t0)
	s := sample("K1", t0, 0.05)
	s.Turbine = ir.TurbineTelemetry{Reading: ir.KaplanReading{
		GateOpeningPct:    60,
		BladeAngleDeg:     30,
		HubOilPressureBar: 0.5,
	}}

	out := x.ExecuteCycle(s, ir.Metadata{})
	d := out.Decision

	require.NotNil(t, d.Emergency)
	assert.Equal(t, ir.SourcePhysics, d.Emergency.Source)
	assert.Equal(t, ir.ReasonHubLeak, d.Emergency.Reason)
	assert.Equal(t, 0.0, d.TargetLoadMw)
	assert.Equal(t, ir.TierReadOnly, d.PermissionTier)
	assert.Equal(t, ir.ModeStop, d.Mode())
	assert.Equal(t, []string{"EMERGENCY_SHUTDOWN", "ENVIRONMENTAL_RISK_HUB_LEAK"}, d.ActiveProtections)
	assert.Equal(t, ir.FleetActionReadOnly, d.FleetAction)
	assert.Contains(t, d.OperatorMessage, "CRITICAL FAILURE. MACHINE STOPPED.")
	assert.Equal(t, []Stage{StageInit, StageLivenessChecked, StageTruthReconciled, StageEmergency}, out.Stages)

	alerts := eventsOf(out, ir.EventAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, ir.SeverityCritical, alerts[0].Alert.Severity)
	assert.Len(t, eventsOf(out, ir.EventAudit), 1)
}

func TestExecuteCycle_StaleIsFailClosedAndIdempotent(t *testing.T) {
	x := newExecutive(francisUnit(), t0.Add(10*time.Second))
	s := sample("U1", t0, 0.05)

	var shapes []ir.ExecutiveDecision
	for i := 0; i < 3; i++ {
		out := x.ExecuteCycle(s, ir.Metadata{})
		assert.Equal(t, []Stage{StageInit, StageEmergency}, out.Stages)
		shapes = append(shapes, out.Decision)
	}

	for _, d := range shapes {
		require.NotNil(t, d.Emergency)
		assert.Equal(t, ir.SourceLiveness, d.Emergency.Source)
		assert.Equal(t, ir.ReasonHeartbeatTimeout, d.Emergency.Reason)
		assert.Equal(t, 0.0, d.TargetLoadMw)
		assert.Equal(t, ir.TierReadOnly, d.PermissionTier)
		assert.Equal(t, shapes[0].ActiveProtections, d.ActiveProtections)
		assert.Equal(t, shapes[0].OperatorMessage, d.OperatorMessage)
		assert.Equal(t, shapes[0].Financials, d.Financials)
	}
	assert.Equal(t, []int64{1, 2, 3}, []int64{shapes[0].Seq, shapes[1].Seq, shapes[2].Seq})
}

func TestExecuteCycle_EmergencyAlertsOnEntryOnly(t *testing.T) {
	x := newExecutive(francisUnit(), t0.Add(10*time.Second))
	stale := sample("U1", t0, 0.05)

	var alerts []int
	for i := 0; i < 3; i++ {
		alerts = append(alerts, len(eventsOf(x.ExecuteCycle(stale, ir.Metadata{}), ir.EventAlert)))
	}
	assert.Equal(t, []int{1, 0, 0}, alerts, "a lasting outage alerts once")

	comm := sample("U1", t0.Add(9*time.Second), 0.05)
	comm.CommStatus = ir.CommBad
	out := x.ExecuteCycle(comm, ir.Metadata{})
	assert.Len(t, eventsOf(out, ir.EventAlert), 1, "a new reason alerts again")

	calm := x.ExecuteCycle(sample("U1", t0.Add(9500*time.Millisecond), 0.05), ir.Metadata{})
	require.Nil(t, calm.Decision.Emergency)

	again := sample("U1", t0.Add(9600*time.Millisecond), 0.05)
	again.CommStatus = ir.CommBad
	assert.Len(t, eventsOf(x.ExecuteCycle(again, ir.Metadata{}), ir.EventAlert), 1, "re-entry after recovery alerts")
	for _, ev := range eventsOf(x.ExecuteCycle(comm, ir.Metadata{}), ir.EventAudit) {
		assert.NotNil(t, ev.Audit.Decision.Emergency, "every stopped cycle is still audited")
	}
}

func TestExecuteCycle_StaleReplayIsMonitorOnly(t *testing.T) {
	x := newExecutive(francisUnit(), t0.Add(10*time.Second))

	out := x.ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{IsReplay: true})

	assert.Nil(t, out.Decision.Emergency)
	assert.True(t, out.Decision.Replay)
	assert.True(t, hasProtection(out.Decision, ir.ProtectLatencyGuard))
	assert.Contains(t, out.Decision.ActiveProtections[0], "MONITOR_ONLY (Replay)")
	assert.Equal(t, nominalPath, out.Stages)
}

func TestExecuteCycle_CommLossStops(t *testing.T) {
	x := newExecutive(francisUnit(), t0)
	s := sample("U1", t0, 0.05)
	s.CommStatus = ir.CommBad

	d := x.ExecuteCycle(s, ir.Metadata{}).Decision

	require.NotNil(t, d.Emergency)
	assert.Equal(t, ir.ReasonScadaLinkFailure, d.Emergency.Reason)
}

func TestExecuteCycle_TimestampRegressionStops(t *testing.T) {
	x := newExecutive(francisUnit(), t0.Add(time.Second))

	first := x.ExecuteCycle(sample("U1", t0.Add(500*time.Millisecond), 0.05), ir.Metadata{}).Decision
	require.Nil(t, first.Emergency)

	d := x.ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{}).Decision
	require.NotNil(t, d.Emergency)
	assert.Equal(t, ir.ReasonTimestampRegression, d.Emergency.Reason)
}

func TestExecuteCycle_InterlocksStop(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.Telemetry)
		want   ir.ReasonCode
	}{
		{"e-stop", func(s *ir.Telemetry) { s.EStop = true }, ir.ReasonEStop},
		{"overspeed", func(s *ir.Telemetry) { s.SpeedPct = 120 }, ir.ReasonOverspeed},
		{"vibration trip", func(s *ir.Telemetry) { s.VibrationMmS = 9 }, ir.ReasonVibrationTrip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sample("U1", t0, 0.05)
			tt.mutate(&s)

			d := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{}).Decision

			require.NotNil(t, d.Emergency)
			assert.Equal(t, ir.SourcePhysics, d.Emergency.Source)
			assert.Equal(t, tt.want, d.Emergency.Reason)
		})
	}
}

func TestExecuteCycle_ReadOnlyKeepsNumbers(t *testing.T) {
	s := sample("U1", t0, 5.0)

	adv := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{Tier: ir.TierAdvisory}).Decision
	ro := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{Tier: ir.TierReadOnly}).Decision

	assert.Equal(t, adv.TargetLoadMw, ro.TargetLoadMw)
	assert.Equal(t, adv.Financials, ro.Financials)
	assert.Equal(t, adv.MasterHealthScore, ro.MasterHealthScore)
	assert.Equal(t, adv.ActiveProtections, ro.ActiveProtections)

	assert.Equal(t, ir.FleetActionReadOnly, ro.FleetAction)
	assert.Equal(t, ir.ReadOnlyPrefix+adv.OperatorMessage, ro.OperatorMessage)
	assert.NotEqual(t, adv.FleetAction, ro.FleetAction)
}

func TestExecuteCycle_UnknownTierFailsClosed(t *testing.T) {
	for _, tier := range []ir.PermissionTier{"SUPERUSER", "operatr", "read_only", "autonomous", "Autonomous "} {
		t.Run(string(tier), func(t *testing.T) {
			out := newExecutive(francisUnit(), t0).ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{Tier: tier})

			assert.Equal(t, ir.TierReadOnly, out.Decision.PermissionTier)
			assert.Equal(t, ir.FleetActionReadOnly, out.Decision.FleetAction)
			assert.True(t, strings.HasPrefix(out.Decision.OperatorMessage, ir.ReadOnlyPrefix))
			assert.Empty(t, eventsOf(out, ir.EventControl))
		})
	}
}

func TestExecuteCycle_ControlOnlyWhenAutonomous(t *testing.T) {
	s := sample("U1", t0, 0.05)

	adv := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{Tier: ir.TierAdvisory})
	auto := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{Tier: ir.TierAutonomous})

	assert.Empty(t, eventsOf(adv, ir.EventControl))
	ctl := eventsOf(auto, ir.EventControl)
	require.Len(t, ctl, 1)
	assert.InDelta(t, 70, ctl[0].Control.TargetLoadMw, 1e-9)
	assert.Equal(t, 50.0, ctl[0].Control.GridFrequencyHz)
}

func TestExecuteCycle_PeltonNozzlePlan(t *testing.T) {
	x := newExecutive(peltonUnit(), t0)
	s := sample("P1", t0, 0.05)
	s.Turbine = ir.TurbineTelemetry{Reading: ir.PeltonReading{
		JetPressureBar:    40,
		NeedlePositionPct: 40,
		ActiveNozzles:     4,
	}}

	out := x.ExecuteCycle(s, ir.Metadata{Tier: ir.TierAutonomous})

	ctl := eventsOf(out, ir.EventControl)
	require.Len(t, ctl, 1)
	assert.Equal(t, 2, ctl[0].Control.ActiveNozzles)
	assert.Equal(t, []int{1, 4}, ctl[0].Control.SequenceOrder)
	assert.True(t, hasProtection(out.Decision, ir.ProtectPeltonOptimizer))
	assert.True(t, hasProtection(out.Decision, ir.ProtectOffDesign))
}

func TestExecuteCycle_MissingReadingIsAdvisory(t *testing.T) {
	s := sample("U1", t0, 0.05)
	s.Turbine = ir.TurbineTelemetry{}

	d := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{}).Decision

	assert.Nil(t, d.Emergency)
	assert.True(t, hasProtection(d, ir.ProtectPhysicsInput))
}

func TestExecuteCycle_WrongFamilyReading(t *testing.T) {
	s := sample("K1", t0, 0.05)

	d := newExecutive(kaplanUnit(), t0).ExecuteCycle(s, ir.Metadata{}).Decision

	assert.Nil(t, d.Emergency)
	assert.Contains(t, d.ActiveProtections, "PHYSICS_INPUT_MISSING: expected kaplan reading, got francis")
}

func TestExecuteCycle_FleetRebalance(t *testing.T) {
	unit := francisUnit()
	unit.InitialIntegrity = 70
	x := newExecutive(unit, t0)

	out := x.ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{Fleet: []ir.UnitStatus{
		{ID: "U2", CurrentMw: 50, MaxCapacityMw: 100, IntegrityScore: 95, Condition: ir.ConditionOptimal},
	}})
	d := out.Decision

	assert.InDelta(t, 49, d.TargetLoadMw, 1e-9)
	assert.True(t, hasProtection(d, ir.ProtectFleetRebalance))
	assert.Equal(t, "Fleet rebalance: derated U1; 21.00 MW shifted to U2.", d.FleetAction)

	fl := eventsOf(out, ir.EventFleet)
	require.Len(t, fl, 1)
	assert.InDelta(t, 71, fl[0].Fleet.PerUnitTargetMw["U2"], 1e-9)
}

func TestExecuteCycle_LowHealthAlertOnCrossing(t *testing.T) {
	x := newExecutive(francisUnit(), t0.Add(time.Second))
	predicted := 100.0
	bad := func(at time.Time) ir.Telemetry {
		s := sample("U1", at, 0.05)
		s.SensorA.Value = 150
		s.SensorB.Value = 50
		s.Predicted = &predicted
		s.Turbine = ir.TurbineTelemetry{Reading: ir.FrancisReading{GateOpeningPct: 50, VortexFrequencyHz: 3}}
		return s
	}

	first := x.ExecuteCycle(bad(t0), ir.Metadata{})
	second := x.ExecuteCycle(bad(t0.Add(100*time.Millisecond)), ir.Metadata{})

	assert.Less(t, first.Decision.MasterHealthScore, 70.0)
	require.Len(t, eventsOf(first, ir.EventAlert), 1)
	assert.Equal(t, "LOW_MASTER_HEALTH", eventsOf(first, ir.EventAlert)[0].Alert.Title)
	assert.Empty(t, eventsOf(second, ir.EventAlert))
}

func TestExecuteCycle_SparePartRequestOnce(t *testing.T) {
	unit := francisUnit()
	unit.InitialIntegrity = 61
	x := newExecutive(unit, t0)

	s := sample("U1", t0, 4)
	s.WindowHours = 400
	first := x.ExecuteCycle(s, ir.Metadata{})

	s2 := sample("U1", t0.Add(time.Second), 4)
	s2.WindowHours = 400
	second := x.ExecuteCycle(s2, ir.Metadata{})

	require.Nil(t, first.Decision.Emergency)
	m := eventsOf(first, ir.EventMaintenance)
	require.Len(t, m, 1)
	assert.Equal(t, "francis runner", m[0].Maintenance.Part)
	assert.Less(t, m[0].Maintenance.IntegrityScore, 60.0)
	assert.Empty(t, eventsOf(second, ir.EventMaintenance))
}

func TestExecuteCycle_NegativeNetProfitAllowed(t *testing.T) {
	s := sample("U1", t0, 0.05)
	s.Market.PriceEurPerMwh = 0.1

	d := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{}).Decision

	assert.Less(t, d.Financials.NetProfitEur, 0.0)
	assert.Equal(t, d.Financials.GrossProfitEur-d.Financials.WearDebtEur, d.Financials.NetProfitEur)
}

func TestExecuteCycle_CycleIDIsContentAddressed(t *testing.T) {
	s := sample("U1", t0, 0.05)

	a := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{}).Decision
	b := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{}).Decision
	r := newExecutive(francisUnit(), t0).ExecuteCycle(s, ir.Metadata{IsReplay: true}).Decision

	assert.Equal(t, a.CycleID, b.CycleID)
	assert.NotEqual(t, a.CycleID, r.CycleID)
	assert.Len(t, a.CycleID, 64)
}

func TestExecutiveReconfigure(t *testing.T) {
	x := newExecutive(francisUnit(), t0.Add(time.Second))
	s := DefaultSettings()
	s.Tier = ir.TierReadOnly
	s.Overlay.VibrationCeilingMmS = 0.01

	x.Reconfigure(s)
	d := x.ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{}).Decision

	assert.Equal(t, ir.TierReadOnly, d.PermissionTier)
	assert.Equal(t, ir.ModeRunThrottled, d.Mode())
}

func TestExecutiveStatus(t *testing.T) {
	x := newExecutive(francisUnit(), t0)

	ok := x.ExecuteCycle(sample("U1", t0, 0.05), ir.Metadata{}).Decision
	st := x.Status(ok)
	assert.Equal(t, ir.ConditionOptimal, st.Condition)
	assert.InDelta(t, 70, st.CurrentMw, 1e-9)

	s := sample("U1", t0.Add(time.Millisecond), 0.05)
	s.EStop = true
	stopped := x.ExecuteCycle(s, ir.Metadata{}).Decision
	assert.Equal(t, ir.ConditionOffline, x.Status(stopped).Condition)
}
