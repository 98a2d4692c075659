package ir

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the operating mode selected for a cycle.
type Mode string

const (
	ModeRun          Mode = "RUN"
	ModeRunThrottled Mode = "RUN_THROTTLED"
	ModeStandby      Mode = "STANDBY"
	ModeStop         Mode = "STOP"
)

// IsRunning reports whether the unit produces power in this mode.
func (m Mode) IsRunning() bool {
	return m == ModeRun || m == ModeRunThrottled
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeRun, ModeRunThrottled, ModeStandby, ModeStop:
		return true
	}
	return false
}

// PermissionTier is the authority level a cycle runs under.
// The zero value behaves as TierAdvisory.
type PermissionTier string

const (
	TierReadOnly   PermissionTier = "READ_ONLY"
	TierAdvisory   PermissionTier = "ADVISORY"
	TierAutonomous PermissionTier = "AUTONOMOUS"
)

// Normalize maps the zero value to TierAdvisory. Any tier outside the
// three known ones fails closed to TierReadOnly.
func (t PermissionTier) Normalize() PermissionTier {
	switch t {
	case "":
		return TierAdvisory
	case TierReadOnly, TierAdvisory, TierAutonomous:
		return t
	}
	return TierReadOnly
}

// ParseTier accepts the canonical names plus the lower-case, dashed forms
// used on the command line ("read-only", "advisory", "autonomous").
func ParseTier(s string) (PermissionTier, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "", "ADVISORY":
		return TierAdvisory, nil
	case "READ_ONLY", "READONLY":
		return TierReadOnly, nil
	case "AUTONOMOUS":
		return TierAutonomous, nil
	}
	return "", fmt.Errorf("unknown permission tier %q", s)
}

// TurbineFamily selects the physics guard variant for a unit.
type TurbineFamily string

const (
	FamilyFrancis TurbineFamily = "francis"
	FamilyKaplan  TurbineFamily = "kaplan"
	FamilyPelton  TurbineFamily = "pelton"
)

// ParseFamily parses a turbine family name, case-insensitively.
func ParseFamily(s string) (TurbineFamily, error) {
	switch f := TurbineFamily(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyFrancis, FamilyKaplan, FamilyPelton:
		return f, nil
	}
	return "", fmt.Errorf("unknown turbine family %q", s)
}

// Winner identifies which source the truth judge trusted.
type Winner string

const (
	WinnerA         Winner = "A"
	WinnerB         Winner = "B"
	WinnerPredicted Winner = "PREDICTED"
	WinnerUncertain Winner = "UNCERTAIN"
)

// SensorReading is one redundant sensor sample.
type SensorReading struct {
	Value     float64   `json:"value" yaml:"value"`
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	SourceID  string    `json:"source_id,omitempty" yaml:"source_id,omitempty"`
}

// Verdict is the truth judge's ruling for one pair of readings.
// Value is the reading downstream consumers should use: the winning sensor,
// or the predicted value as a synthetic substitute.
type Verdict struct {
	Winner     Winner  `json:"winner"`
	Confidence float64 `json:"confidence"`
	Value      float64 `json:"value"`
}

// IntegrityState is the accumulated wear model of one unit.
type IntegrityState struct {
	IntegrityScore        float64 `json:"integrity_score"`
	CumulativeStressHours float64 `json:"cumulative_stress_hours"`
}

// Condition is the coarse health label a unit publishes to its fleet.
type Condition string

const (
	ConditionOptimal  Condition = "OPTIMAL"
	ConditionWarning  Condition = "WARNING"
	ConditionCritical Condition = "CRITICAL"
	ConditionOffline  Condition = "OFFLINE"
)

// UnitStatus is the read-only view of a unit shared with the fleet coordinator.
type UnitStatus struct {
	ID             string    `json:"id" yaml:"id"`
	CurrentMw      float64   `json:"current_mw" yaml:"current_mw"`
	MaxCapacityMw  float64   `json:"max_capacity_mw" yaml:"max_capacity_mw"`
	IntegrityScore float64   `json:"integrity_score" yaml:"integrity_score"`
	Condition      Condition `json:"condition" yaml:"condition"`
}

// Severity ranks protections; the operator message leads with the highest.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityAdvisory
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityAdvisory:
		return "advisory"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ProtectionCode names a non-fatal protective condition raised in a cycle.
type ProtectionCode string

const (
	ProtectLatencyGuard     ProtectionCode = "LATENCY_GUARD"
	ProtectSensorDiscord    ProtectionCode = "SENSOR_DISCORD"
	ProtectSensorDropout    ProtectionCode = "SENSOR_DROPOUT"
	ProtectChemistry        ProtectionCode = "CHEMISTRY_ALERT"
	ProtectOffDesign        ProtectionCode = "OFF_DESIGN"
	ProtectHubSealMargin    ProtectionCode = "HUB_SEAL_MARGIN"
	ProtectVortexWarning    ProtectionCode = "VORTEX_WARNING"
	ProtectNozzleBlock      ProtectionCode = "NOZZLE_SEQUENCING_BLOCK"
	ProtectPhysicsInput     ProtectionCode = "PHYSICS_INPUT_MISSING"
	ProtectIntegrityFloor   ProtectionCode = "INTEGRITY_FLOOR"
	ProtectVibrationCap     ProtectionCode = "VIBRATION_CAP"
	ProtectArithmeticGuard  ProtectionCode = "ARITHMETIC_GUARD"
	ProtectFleetRebalance   ProtectionCode = "FLEET_REBALANCE"
	ProtectPeltonOptimizer  ProtectionCode = "PELTON_OPTIMIZER"
)

// ProtectEmergencyShutdown leads the protection list of every emergency decision.
const ProtectEmergencyShutdown ProtectionCode = "EMERGENCY_SHUTDOWN"

// Protection is one raised condition. Its String form is what appears in
// ExecutiveDecision.ActiveProtections.
type Protection struct {
	Code     ProtectionCode
	Severity Severity
	Detail   string
}

func (p Protection) String() string {
	if p.Detail == "" {
		return string(p.Code)
	}
	return string(p.Code) + ": " + p.Detail
}

// FaultSource distinguishes the two hard-stop branches.
type FaultSource string

const (
	SourceLiveness FaultSource = "LIVENESS"
	SourcePhysics  FaultSource = "PHYSICS"
)

// ReasonCode is the machine-readable cause of an emergency stop.
type ReasonCode string

const (
	ReasonHeartbeatTimeout    ReasonCode = "HEARTBEAT_TIMEOUT"
	ReasonScadaLinkFailure    ReasonCode = "SCADA_LINK_FAILURE"
	ReasonTimestampRegression ReasonCode = "TIMESTAMP_REGRESSION"
	ReasonHubLeak             ReasonCode = "ENVIRONMENTAL_RISK_HUB_LEAK"
	ReasonVortexRope          ReasonCode = "FRANCIS_VORTEX_ROPE"
	ReasonWaterHammer         ReasonCode = "PELTON_WATER_HAMMER"
	ReasonEStop               ReasonCode = "E_STOP"
	ReasonOverspeed           ReasonCode = "OVERSPEED"
	ReasonVibrationTrip       ReasonCode = "HIGH_VIBRATION_TRIP"
)

// Emergency describes why a cycle ended in the terminal stop state.
type Emergency struct {
	Source FaultSource `json:"source"`
	Reason ReasonCode  `json:"reason"`
	Detail string      `json:"detail,omitempty"`
}
