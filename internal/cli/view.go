package cli

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/roach88/hydroexec/internal/config"
	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/ir"
)

// DecisionView is the printed form of one executive decision.
type DecisionView struct {
	RunID        string   `json:"run_id,omitempty"`
	UnitID       string   `json:"unit_id"`
	Seq          int64    `json:"seq"`
	CycleID      string   `json:"cycle_id"`
	Mode         ir.Mode  `json:"mode"`
	Tier         string   `json:"tier"`
	TargetLoadMw float64  `json:"target_load_mw"`
	MasterHealth float64  `json:"master_health"`
	Protections  []string `json:"protections"`
	Emergency    string   `json:"emergency,omitempty"`
	Replay       bool     `json:"replay,omitempty"`
	NetProfitEur float64  `json:"net_profit_eur"`
	Message      string   `json:"message"`
	Events       []string `json:"events,omitempty"`
}

func newDecisionView(runID string, d ir.ExecutiveDecision, events []ir.OutboundEvent) DecisionView {
	v := DecisionView{
		RunID:        runID,
		UnitID:       d.UnitID,
		Seq:          d.Seq,
		CycleID:      d.CycleID,
		Mode:         d.Mode(),
		Tier:         string(d.PermissionTier.Normalize()),
		TargetLoadMw: round2(d.TargetLoadMw),
		MasterHealth: round2(d.MasterHealthScore),
		Protections:  append([]string{}, d.ActiveProtections...),
		NetProfitEur: round2(d.Financials.NetProfitEur),
		Message:      d.OperatorMessage,
		Replay:       d.Replay,
	}
	if d.Emergency != nil {
		v.Emergency = string(d.Emergency.Reason)
	}
	for _, ev := range events {
		v.Events = append(v.Events, string(ev.Kind))
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// writeDecisionText prints one decision per line.
func writeDecisionText(w io.Writer, v DecisionView) {
	line := fmt.Sprintf("%-6s #%-4d %-14s %8.2f MW  health %6.2f", v.UnitID, v.Seq, v.Mode, v.TargetLoadMw, v.MasterHealth)
	if v.Emergency != "" {
		line += "  EMERGENCY " + v.Emergency
	}
	if len(v.Protections) > 0 {
		codes := make([]string, 0, len(v.Protections))
		for _, p := range v.Protections {
			code, _, _ := strings.Cut(p, ":")
			codes = append(codes, strings.TrimSpace(code))
		}
		line += "  [" + strings.Join(codes, ", ") + "]"
	}
	fmt.Fprintln(w, line)
}

// loadSettings reads the runtime config (defaults when path is empty) and
// applies a tier override.
func loadSettings(path, tier string) (*config.Config, engine.Settings, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, engine.Settings{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if tier != "" {
		if _, err := ir.ParseTier(tier); err != nil {
			return nil, engine.Settings{}, WrapExitError(ExitCommandError, "invalid --tier", err)
		}
		cfg.Engine.Tier = tier
	}
	return cfg, engine.SettingsFromConfig(cfg), nil
}

// initialStatus is a unit's board entry before its first cycle.
func initialStatus(u ir.UnitSpec) ir.UnitStatus {
	score := u.InitialIntegrity
	if score <= 0 {
		score = 100
	}
	return ir.UnitStatus{
		ID:             u.ID,
		MaxCapacityMw:  u.MaxCapacityMw,
		IntegrityScore: score,
		Condition:      ir.ConditionOptimal,
	}
}
