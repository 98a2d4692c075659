// Package permission applies the three-tier authority gate to a decision.
package permission

import (
	"strings"

	"github.com/roach88/hydroexec/internal/ir"
)

// Sanitize returns the decision as it may be shown under tier.
//
// READ_ONLY replaces the fleet action with a sentinel and marks the
// operator message; the numbers stay visible as what the engine would do.
// ADVISORY (the default) and AUTONOMOUS pass the decision through.
// The input decision is never modified.
func Sanitize(d ir.ExecutiveDecision, tier ir.PermissionTier) ir.ExecutiveDecision {
	out := d
	out.ActiveProtections = append([]string(nil), d.ActiveProtections...)
	if out.ActiveProtections == nil {
		out.ActiveProtections = []string{}
	}
	if d.Emergency != nil {
		e := *d.Emergency
		out.Emergency = &e
	}

	out.PermissionTier = tier.Normalize()
	if out.PermissionTier == ir.TierReadOnly {
		out.FleetAction = ir.FleetActionReadOnly
		if !strings.HasPrefix(out.OperatorMessage, ir.ReadOnlyPrefix) {
			out.OperatorMessage = ir.ReadOnlyPrefix + out.OperatorMessage
		}
	}
	return out
}

// AllowsHardware reports whether a hardware-affecting adapter may act on
// decisions made under tier.
func AllowsHardware(tier ir.PermissionTier) bool {
	return tier == ir.TierAutonomous
}
