package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

func TestTestCommand_HarnessScenariosPass(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ vibration_throttle")
	assert.Contains(t, out, "✓ emergency_paths")
	assert.Contains(t, out, "✓ autonomous_control")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTestCommand_FilterAndJSON(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios, "--filter", "emergency_*", "--format", "json")
	require.NoError(t, err)

	var res TestResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Passed)
	require.Len(t, res.Scenarios, 1)
	assert.Equal(t, "emergency_paths", res.Scenarios[0].Name)
}

// writeScenario writes a one-step scenario over testdata/plant.cue whose
// step expects mode.
func writeScenario(t *testing.T, dir, mode string) string {
	t.Helper()
	plant, err := filepath.Abs(testPlant)
	require.NoError(t, err)

	body := `name: single_step
description: "One calm sample"
plant: ` + plant + `
steps:
  - unit: U1
    at: 0s
    telemetry:
      vibration_mm_s: 0.05
      sensor_a: {value: 100}
      sensor_b: {value: 100}
      speed_pct: 100
      grid_frequency_hz: 50
      market: {price_eur_per_mwh: 50, demand: MED}
      turbine:
        francis: {gate_opening_pct: 85, draft_tube_vortex_amplitude: 0.05, vortex_frequency_hz: 3}
    expect: {mode: ` + mode + `}
assertions:
  - type: emergency_count
    count: 0
`
	path := filepath.Join(dir, "single_step.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTestCommand_FailureExitCode(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "STANDBY")

	out, err := execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ single_step")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "RUN")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	golden := filepath.Join(dir, "golden", "single_step.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"single_step"`)

	_, err = execute(t, "test", path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"trace":[]}`), 0o644))
	out, err = execute(t, "test", path)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unterminated"), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
}

func TestTestCommand_MissingPath(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
