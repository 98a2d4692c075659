package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/hydroexec/internal/ir"
)

//go:embed schema.cue
var schemaSrc string

// plantWire mirrors #Plant. Units are keyed by ID in CUE.
type plantWire struct {
	Name            string                 `json:"name"`
	TotalCapacityMw float64                `json:"total_capacity_mw"`
	Unit            map[string]ir.UnitSpec `json:"unit"`
}

// CompilePlant unifies a CUE plant value with the #Plant schema and
// converts it to a PlantSpec. Units are returned sorted by ID.
//
// The value should be the plant struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`plant: { name: "Alpine", unit: U1: {...} }`)
//	spec, err := CompilePlant(v.LookupPath(cue.ParsePath("plant")))
func CompilePlant(v cue.Value) (*ir.PlantSpec, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "plant", Message: "plant is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile plant schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Plant")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var wire plantWire
	if err := unified.Decode(&wire); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.PlantSpec{
		Name:            wire.Name,
		TotalCapacityMw: wire.TotalCapacityMw,
		Units:           make([]ir.UnitSpec, 0, len(wire.Unit)),
	}
	for _, u := range wire.Unit {
		spec.Units = append(spec.Units, u)
	}
	sort.Slice(spec.Units, func(i, j int) bool { return spec.Units[i].ID < spec.Units[j].ID })

	if len(spec.Units) == 0 {
		return nil, &CompileError{Field: "unit", Message: "at least one unit is required", Pos: v.Pos()}
	}
	if err := spec.Validate(); err != nil {
		return nil, &CompileError{Field: "unit", Message: err.Error(), Pos: v.Pos()}
	}
	return spec, nil
}

// LoadPlant loads a plant from a .cue file or a directory of .cue files and
// compiles its top-level `plant` value.
func LoadPlant(path string) (*ir.PlantSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load plant: %w", err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("load plant %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	return CompilePlant(value.LookupPath(cue.ParsePath("plant")))
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Report the first error that carries a position.
	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &CompileError{Field: "cue", Message: first.Error()}
}
