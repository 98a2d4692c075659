// Package fleet redistributes load across sibling units when one of them is
// degraded, under a shared capacity budget.
//
// The coordinator works on an immutable snapshot of sibling status; it never
// touches another unit's integrity state.
package fleet

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/hydroexec/internal/ir"
)

// Params tunes the coordinator.
type Params struct {
	// Threshold is the integrity below which a unit is degraded.
	Threshold float64
	// DegradeFactor scales a degraded unit's target.
	DegradeFactor float64
}

// DefaultParams returns the standard coordinator settings.
func DefaultParams() Params {
	return Params{Threshold: 80, DegradeFactor: 0.7}
}

// Plan is the coordinator's output.
type Plan struct {
	PerUnitTargetMw map[string]float64
	Message         string
	// ShiftedMw is the load moved onto healthy siblings.
	ShiftedMw float64
}

// Coordinator computes redistribution plans.
type Coordinator struct {
	p Params
}

// NewCoordinator creates a coordinator.
func NewCoordinator(p Params) Coordinator {
	return Coordinator{p: p}
}

// Params returns the coordinator settings.
func (c Coordinator) Params() Params { return c.p }

// Degraded reports whether integrity is below the rebalance threshold.
func (c Coordinator) Degraded(integrity float64) bool {
	return integrity < c.p.Threshold
}

// Rebalance derates every degraded unit and reassigns the freed load to
// healthy siblings, healthiest first (ties by id), each bounded by its
// headroom. Targets are clamped to [0, MaxCapacityMw] and, if the total
// still exceeds totalCapacityMw, the least healthy units are trimmed first.
func (c Coordinator) Rebalance(units []ir.UnitStatus, totalCapacityMw float64) Plan {
	sorted := make([]ir.UnitStatus, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IntegrityScore != sorted[j].IntegrityScore {
			return sorted[i].IntegrityScore > sorted[j].IntegrityScore
		}
		return sorted[i].ID < sorted[j].ID
	})

	targets := make(map[string]float64, len(sorted))
	var freed float64
	var degraded []string
	for _, u := range sorted {
		cur := ir.Clamp(finiteOrZero(u.CurrentMw), 0, maxCap(u))
		if c.Degraded(u.IntegrityScore) {
			reduced := cur * ir.Clamp(c.p.DegradeFactor, 0, 1)
			freed += cur - reduced
			cur = reduced
			degraded = append(degraded, u.ID)
		}
		targets[u.ID] = cur
	}

	var shifted float64
	var receivers []string
	for _, u := range sorted {
		if freed <= 0 {
			break
		}
		if c.Degraded(u.IntegrityScore) || u.Condition == ir.ConditionOffline {
			continue
		}
		give := math.Min(maxCap(u)-targets[u.ID], freed)
		if give <= 0 {
			continue
		}
		targets[u.ID] += give
		freed -= give
		shifted += give
		receivers = append(receivers, u.ID)
	}

	budget := math.Max(0, finiteOrZero(totalCapacityMw))
	excess := sum(targets) - budget
	for i := len(sorted) - 1; i >= 0 && excess > 0; i-- {
		id := sorted[i].ID
		cut := math.Min(targets[id], excess)
		targets[id] -= cut
		excess -= cut
	}

	return Plan{
		PerUnitTargetMw: targets,
		Message:         message(degraded, receivers, shifted),
		ShiftedMw:       shifted,
	}
}

func message(degraded, receivers []string, shifted float64) string {
	if len(degraded) == 0 {
		return "Unit Independent."
	}
	msg := fmt.Sprintf("Fleet rebalance: derated %s", strings.Join(degraded, ", "))
	if len(receivers) > 0 {
		msg += fmt.Sprintf("; %.2f MW shifted to %s", shifted, strings.Join(receivers, ", "))
	} else {
		msg += "; no sibling headroom"
	}
	return msg + "."
}

func maxCap(u ir.UnitStatus) float64 {
	return math.Max(0, finiteOrZero(u.MaxCapacityMw))
}

func finiteOrZero(v float64) float64 {
	v, _ = ir.Finite(v, 0)
	return v
}

func sum(m map[string]float64) float64 {
	// Sorted keys keep the floating point sum independent of map order.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var s float64
	for _, k := range keys {
		s += m[k]
	}
	return s
}
