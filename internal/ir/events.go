package ir

import "time"

// EventKind tags an OutboundEvent.
type EventKind string

const (
	EventAudit       EventKind = "audit"
	EventAlert       EventKind = "alert"
	EventControl     EventKind = "control"
	EventFleet       EventKind = "fleet"
	EventMaintenance EventKind = "maintenance"
)

// Alert is an operator-facing notification.
type Alert struct {
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Value    float64  `json:"value"`
	Reason   string   `json:"reason"`
}

// ControlProposal is a setpoint handed to the actuator adapter.
// Only emitted when the cycle runs with TierAutonomous.
type ControlProposal struct {
	TargetLoadMw    float64 `json:"target_load_mw"`
	ActiveNozzles   int     `json:"active_nozzles,omitempty"`
	SequenceOrder   []int   `json:"sequence_order,omitempty"`
	VibrationMmS    float64 `json:"vibration_mm_s"`
	GridFrequencyHz float64 `json:"grid_frequency_hz,omitempty"`
}

// FleetPlan is a redistribution request for sibling units.
type FleetPlan struct {
	PerUnitTargetMw map[string]float64 `json:"per_unit_target_mw"`
	Message         string             `json:"message"`
}

// MaintenanceRequest asks for a spare part when integrity drops.
type MaintenanceRequest struct {
	Part           string  `json:"part"`
	IntegrityScore float64 `json:"integrity_score"`
}

// AuditRecord pairs a decision with the inputs that produced it.
// Tier is the tier requested for the cycle; an emergency decision always
// reports READ_ONLY regardless. Fleet is the sibling snapshot the cycle saw.
type AuditRecord struct {
	Decision    ExecutiveDecision `json:"decision"`
	Telemetry   Telemetry         `json:"telemetry"`
	Tier        PermissionTier    `json:"tier"`
	Fleet       []UnitStatus      `json:"fleet,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// OutboundEvent is one message produced by a cycle. Exactly one of the
// payload pointers matching Kind is set.
type OutboundEvent struct {
	Kind    EventKind `json:"kind"`
	UnitID  string    `json:"unit_id"`
	CycleID string    `json:"cycle_id"`
	Seq     int64     `json:"seq"`

	Audit       *AuditRecord        `json:"audit,omitempty"`
	Alert       *Alert              `json:"alert,omitempty"`
	Control     *ControlProposal    `json:"control,omitempty"`
	Fleet       *FleetPlan          `json:"fleet,omitempty"`
	Maintenance *MaintenanceRequest `json:"maintenance,omitempty"`
}
