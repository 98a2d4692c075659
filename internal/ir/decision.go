package ir

import "time"

// FleetActionReadOnly replaces the fleet action when the cycle runs read-only.
const FleetActionReadOnly = "NONE (Read-Only)"

// ReadOnlyPrefix is prepended to the operator message of read-only cycles.
const ReadOnlyPrefix = "[READ-ONLY] "

// Financials is the economic summary of a decision.
type Financials struct {
	GrossProfitEur float64 `json:"gross_profit_eur"`
	WearDebtEur    float64 `json:"wear_debt_eur"`
	NetProfitEur   float64 `json:"net_profit_eur"`
	ROIPct         float64 `json:"roi_pct"`
	Mode           Mode    `json:"mode"`
}

// ExecutiveDecision is the single output of one cycle.
type ExecutiveDecision struct {
	UnitID     string    `json:"unit_id"`
	Seq        int64     `json:"seq"`
	CycleID    string    `json:"cycle_id"`
	SampleTime time.Time `json:"sample_time"`

	TargetLoadMw      float64        `json:"target_load_mw"`
	MasterHealthScore float64        `json:"master_health_score"`
	ActiveProtections []string       `json:"active_protections"`
	PermissionTier    PermissionTier `json:"permission_tier"`
	Financials        Financials     `json:"financials"`
	OperatorMessage   string         `json:"operator_message"`
	FleetAction       string         `json:"fleet_action,omitempty"`
	Emergency         *Emergency     `json:"emergency,omitempty"`

	Verdict       Verdict        `json:"verdict"`
	Integrity     IntegrityState `json:"integrity"`
	SynergyFactor float64        `json:"synergy_factor"`
	Replay        bool           `json:"replay,omitempty"`
}

// IsEmergency reports whether the decision is the terminal stop state.
func (d ExecutiveDecision) IsEmergency() bool {
	return d.Emergency != nil
}

// Mode returns the operating mode recorded in the financial summary.
func (d ExecutiveDecision) Mode() Mode {
	return d.Financials.Mode
}
