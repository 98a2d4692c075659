package ir

import "fmt"

// PlantSpec is the compiled static description of a plant.
type PlantSpec struct {
	Name string `json:"name"`
	// TotalCapacityMw is the shared fleet budget. Zero means the sum of
	// unit capacities.
	TotalCapacityMw float64    `json:"total_capacity_mw"`
	Units           []UnitSpec `json:"units"`
}

// UnitSpec describes one turbine unit.
type UnitSpec struct {
	ID               string           `json:"id"`
	Family           TurbineFamily    `json:"family"`
	MaxCapacityMw    float64          `json:"max_capacity_mw"`
	InitialIntegrity float64          `json:"initial_integrity,omitempty"`
	Physics          PhysicsOverrides `json:"physics,omitempty"`
}

// PhysicsOverrides replaces family defaults for one unit. Zero fields keep
// the default.
type PhysicsOverrides struct {
	CamSlope           float64 `json:"cam_slope,omitempty"`
	CamOffsetDeg       float64 `json:"cam_offset_deg,omitempty"`
	HubDepthM          float64 `json:"hub_depth_m,omitempty"`
	BestGatePct        float64 `json:"best_gate_pct,omitempty"`
	OptimalNeedlePct   float64 `json:"optimal_needle_pct,omitempty"`
	MaxNozzles         int     `json:"max_nozzles,omitempty"`
	NozzleClosingTimeS float64 `json:"nozzle_closing_time_s,omitempty"`
}

// Unit returns the spec for id.
func (p PlantSpec) Unit(id string) (UnitSpec, bool) {
	for _, u := range p.Units {
		if u.ID == id {
			return u, true
		}
	}
	return UnitSpec{}, false
}

// Capacity returns the fleet budget.
func (p PlantSpec) Capacity() float64 {
	if p.TotalCapacityMw > 0 {
		return p.TotalCapacityMw
	}
	var sum float64
	for _, u := range p.Units {
		sum += u.MaxCapacityMw
	}
	return sum
}

// Validate checks structural invariants the CUE schema cannot express.
func (p PlantSpec) Validate() error {
	seen := make(map[string]bool, len(p.Units))
	for _, u := range p.Units {
		if u.ID == "" {
			return fmt.Errorf("unit with empty id")
		}
		if seen[u.ID] {
			return fmt.Errorf("duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true
		if _, err := ParseFamily(string(u.Family)); err != nil {
			return fmt.Errorf("unit %s: %w", u.ID, err)
		}
		if u.MaxCapacityMw <= 0 {
			return fmt.Errorf("unit %s: max_capacity_mw must be positive", u.ID)
		}
	}
	return nil
}
