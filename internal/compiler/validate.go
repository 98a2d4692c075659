package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/hydroexec/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrPlantNameEmpty       = "E101" // plant name is required
	ErrPlantNoUnits         = "E102" // at least one unit required
	ErrDuplicateUnit        = "E103" // unit IDs must be unique
	ErrInvalidFamily        = "E104" // unknown turbine family
	ErrInvalidCapacity      = "E105" // capacity must be positive
	ErrBudgetExceedsFleet   = "E106" // plant budget above installed capacity
	ErrInvalidIntegrity     = "E107" // initial integrity outside (0, 100]
	ErrForeignPhysicsOption = "E108" // physics override for another family
)

// ValidationError represents a plant validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled plant against the structural rules the engine
// relies on. Returns all errors found (does not fail-fast).
func Validate(spec *ir.PlantSpec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if spec == nil {
		add("plant", ErrPlantNoUnits, "plant is nil")
		return errs
	}
	if strings.TrimSpace(spec.Name) == "" {
		add("name", ErrPlantNameEmpty, "plant name is required")
	}
	if len(spec.Units) == 0 {
		add("units", ErrPlantNoUnits, "at least one unit is required")
	}

	seen := make(map[string]bool, len(spec.Units))
	var installed float64
	for i, u := range spec.Units {
		field := fmt.Sprintf("units[%d]", i)
		if u.ID != "" {
			field = "unit." + u.ID
		}

		if seen[u.ID] {
			add(field, ErrDuplicateUnit, "duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true

		if _, err := ir.ParseFamily(string(u.Family)); err != nil {
			add(field+".family", ErrInvalidFamily, "%v", err)
		}
		if u.MaxCapacityMw <= 0 {
			add(field+".max_capacity_mw", ErrInvalidCapacity, "must be positive, got %g", u.MaxCapacityMw)
		}
		installed += u.MaxCapacityMw

		if u.InitialIntegrity < 0 || u.InitialIntegrity > 100 {
			add(field+".initial_integrity", ErrInvalidIntegrity, "must be in (0, 100], got %g", u.InitialIntegrity)
		}

		for _, name := range foreignPhysics(u) {
			add(field+".physics."+name, ErrForeignPhysicsOption, "%s does not apply to a %s unit", name, u.Family)
		}
	}

	if spec.TotalCapacityMw < 0 {
		add("total_capacity_mw", ErrInvalidCapacity, "must not be negative, got %g", spec.TotalCapacityMw)
	}
	if spec.TotalCapacityMw > 0 && installed > 0 && spec.TotalCapacityMw > installed {
		add("total_capacity_mw", ErrBudgetExceedsFleet,
			"budget %g MW exceeds installed capacity %g MW", spec.TotalCapacityMw, installed)
	}
	return errs
}

// foreignPhysics lists the overrides set on u that belong to another
// turbine family.
func foreignPhysics(u ir.UnitSpec) []string {
	p := u.Physics
	set := map[ir.TurbineFamily][]string{}
	note := func(f ir.TurbineFamily, name string, isSet bool) {
		if isSet {
			set[f] = append(set[f], name)
		}
	}
	note(ir.FamilyKaplan, "cam_slope", p.CamSlope != 0)
	note(ir.FamilyKaplan, "cam_offset_deg", p.CamOffsetDeg != 0)
	note(ir.FamilyKaplan, "hub_depth_m", p.HubDepthM != 0)
	note(ir.FamilyFrancis, "best_gate_pct", p.BestGatePct != 0)
	note(ir.FamilyPelton, "optimal_needle_pct", p.OptimalNeedlePct != 0)
	note(ir.FamilyPelton, "max_nozzles", p.MaxNozzles != 0)
	note(ir.FamilyPelton, "nozzle_closing_time_s", p.NozzleClosingTimeS != 0)

	var out []string
	for _, f := range []ir.TurbineFamily{ir.FamilyFrancis, ir.FamilyKaplan, ir.FamilyPelton} {
		if f != u.Family {
			out = append(out, set[f]...)
		}
	}
	return out
}
