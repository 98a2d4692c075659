package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hydroexec/internal/ir"
)

// DefaultLag is the evaluation delay of a step that does not set one.
const DefaultLag = 100 * time.Millisecond

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Plant is the path of the CUE plant file. LoadScenario resolves it
	// relative to the scenario file.
	Plant string `yaml:"plant"`

	// Tier is the permission tier of every step that does not set its own.
	// Empty means the configured default.
	Tier string `yaml:"tier,omitempty"`

	// Start is the scenario epoch. Zero means testutil.Epoch.
	Start time.Time `yaml:"start,omitempty"`

	// RunID names the run in the audit log. Empty means
	// testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Base is an anchor point for step telemetry. It is never run on its
	// own; steps reuse it through YAML aliases and merge keys.
	Base ir.Telemetry `yaml:"base,omitempty"`

	// Steps are fed to the executives in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and audit log.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one telemetry sample.
type Step struct {
	// Unit is the unit the sample belongs to.
	Unit string `yaml:"unit"`

	// At offsets the sample timestamp from the scenario start.
	At time.Duration `yaml:"at"`

	// Lag is how long after the sample the unit evaluates it.
	Lag time.Duration `yaml:"lag,omitempty"`

	// Tier overrides the scenario tier for this step.
	Tier string `yaml:"tier,omitempty"`

	// Replay runs the step in replay mode.
	Replay bool `yaml:"replay,omitempty"`

	Telemetry ir.Telemetry `yaml:"telemetry"`

	// Expect checks the step's decision. Nil means no check.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected decision of a step. Only the fields set
// are checked.
type Expect struct {
	Mode string `yaml:"mode,omitempty"`

	// Emergency is the expected stop reason code.
	Emergency string `yaml:"emergency,omitempty"`

	TargetLoadMw *float64 `yaml:"target_load_mw,omitempty"`

	// Protections must all be raised. Extra protections are allowed.
	Protections []string `yaml:"protections,omitempty"`

	// Events are the expected outbound event kinds, in emission order.
	Events []string `yaml:"events,omitempty"`
}

// Assertion validates the trace or the audit log.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Unit restricts the assertion to one unit (mode_sequence requires it).
	Unit string `yaml:"unit,omitempty"`

	// Modes is the expected mode sequence (mode_sequence).
	Modes []string `yaml:"modes,omitempty"`

	// Reason restricts emergency_count to one stop reason.
	Reason string `yaml:"reason,omitempty"`

	// Kind is the event kind (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Code is the protection code (protection_count).
	Code string `yaml:"code,omitempty"`

	// Where filters audit rows (audit_count). Keys are audit query fields.
	Where map[string]any `yaml:"where,omitempty"`

	// Count is the expected number of matches.
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertModeSequence    = "mode_sequence"
	AssertEmergencyCount  = "emergency_count"
	AssertEventCount      = "event_count"
	AssertProtectionCount = "protection_count"
	AssertAuditCount      = "audit_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The plant path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Plant != "" && !filepath.IsAbs(scenario.Plant) {
		scenario.Plant = filepath.Join(filepath.Dir(path), scenario.Plant)
	}
	if _, err := os.Stat(scenario.Plant); err != nil {
		return nil, fmt.Errorf("invalid scenario: plant file not found: %s", scenario.Plant)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario without touching the
// file system.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Plant == "" {
		return fmt.Errorf("plant is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := ir.ParseTier(s.Tier); err != nil {
		return fmt.Errorf("tier: %w", err)
	}

	for i, step := range s.Steps {
		if step.Unit == "" {
			return fmt.Errorf("steps[%d]: unit is required", i)
		}
		if step.Lag < 0 {
			return fmt.Errorf("steps[%d]: lag must be non-negative", i)
		}
		if _, err := ir.ParseTier(step.Tier); err != nil {
			return fmt.Errorf("steps[%d].tier: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Mode != "" && !ir.Mode(step.Expect.Mode).Valid() {
			return fmt.Errorf("steps[%d].expect: unknown mode %q", i, step.Expect.Mode)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertModeSequence:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for mode_sequence", index)
		}
		if len(a.Modes) == 0 {
			return fmt.Errorf("assertions[%d]: modes list is required for mode_sequence", index)
		}
	case AssertEmergencyCount:
	case AssertEventCount:
		switch ir.EventKind(a.Kind) {
		case ir.EventAudit, ir.EventAlert, ir.EventControl, ir.EventFleet, ir.EventMaintenance:
		default:
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
	case AssertProtectionCount:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for protection_count", index)
		}
	case AssertAuditCount:
		if _, err := auditQuery(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
