package engine

import (
	"fmt"

	"github.com/roach88/hydroexec/internal/ir"
)

// protections accumulates the conditions raised during one cycle in the
// order they were raised.
type protections []ir.Protection

func (p *protections) raise(code ir.ProtectionCode, sev ir.Severity, format string, args ...any) {
	*p = append(*p, ir.Protection{Code: code, Severity: sev, Detail: fmt.Sprintf(format, args...)})
}

func (p *protections) add(more ...ir.Protection) {
	*p = append(*p, more...)
}

func (p protections) strings() []string {
	out := make([]string, len(p))
	for i, pr := range p {
		out[i] = pr.String()
	}
	return out
}

// headline returns the most severe protection. Ties go to the one raised
// first.
func (p protections) headline() (ir.Protection, bool) {
	if len(p) == 0 {
		return ir.Protection{}, false
	}
	top := p[0]
	for _, pr := range p[1:] {
		if pr.Severity > top.Severity {
			top = pr
		}
	}
	return top, true
}

// composeMessage builds the operator message: the most severe condition
// (or the strategy reason when nothing was raised), then the fleet action.
func composeMessage(p protections, reason, fleetAction string) string {
	head := reason
	if top, ok := p.headline(); ok {
		head = top.String()
	}
	return head + " | " + fleetAction
}

func emergencyMessage(reason ir.ReasonCode, detail string) string {
	return fmt.Sprintf("CRITICAL FAILURE. MACHINE STOPPED. %s: %s", reason, detail)
}
