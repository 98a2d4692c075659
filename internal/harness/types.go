package harness

import (
	"math"
	"strings"

	"github.com/roach88/hydroexec/internal/ir"
)

// TraceEvent is the condensed decision of one step.
//
// Target loads are rounded to two decimals and cycle IDs are left out, so
// a trace reads the same on every platform and can be kept as a golden
// file.
type TraceEvent struct {
	Step         int      `json:"step"`
	Unit         string   `json:"unit"`
	Seq          int64    `json:"seq"`
	Mode         ir.Mode  `json:"mode"`
	TargetLoadMw float64  `json:"target_load_mw"`
	Emergency    string   `json:"emergency,omitempty"`
	Protections  []string `json:"protections"`
	Events       []string `json:"events"`
}

func newTraceEvent(step int, out ir.ExecutiveDecision, events []ir.OutboundEvent) TraceEvent {
	ev := TraceEvent{
		Step:         step,
		Unit:         out.UnitID,
		Seq:          out.Seq,
		Mode:         out.Mode(),
		TargetLoadMw: math.Round(out.TargetLoadMw*100) / 100,
		Protections:  protectionCodes(out.ActiveProtections),
		Events:       make([]string, 0, len(events)),
	}
	if out.Emergency != nil {
		ev.Emergency = string(out.Emergency.Reason)
	}
	for _, e := range events {
		ev.Events = append(ev.Events, string(e.Kind))
	}
	return ev
}

// hasProtection reports whether code is among the event's protections.
func (e TraceEvent) hasProtection(code string) bool {
	for _, p := range e.Protections {
		if p == code {
			return true
		}
	}
	return false
}

func (e TraceEvent) countEvents(kind string) int {
	n := 0
	for _, k := range e.Events {
		if k == kind {
			n++
		}
	}
	return n
}

// protectionCodes strips the detail from "CODE: detail" protection strings.
func protectionCodes(protections []string) []string {
	out := make([]string, 0, len(protections))
	for _, p := range protections {
		code, _, _ := strings.Cut(p, ":")
		out = append(out, strings.TrimSpace(code))
	}
	return out
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// RunID is the run the audit records were written under.
	RunID string `json:"run_id"`

	// Trace contains one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
