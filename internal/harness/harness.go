package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/hydroexec/internal/compiler"
	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/fleet"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/store"
	"github.com/roach88/hydroexec/internal/testutil"
)

// targetTolerance is the slack allowed when comparing expected loads.
const targetTolerance = 1e-6

// Harness is the test execution engine.
// It drives one Executive per unit on a deterministic wall clock and
// records every audit event in an in-memory store.
//
// Steps run synchronously in file order, so the interleaving of units is
// fixed by the scenario rather than by goroutine scheduling.
type Harness struct {
	plant    *ir.PlantSpec
	store    *store.Store
	clock    *testutil.WallClock
	board    *fleet.Board
	units    map[string]*engine.Executive
	settings engine.Settings
	runID    string
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile and validate the CUE plant
// 2. Create fresh in-memory database
// 3. Build one executive per unit on a shared fleet board
// 4. Execute steps with expect validation
// 5. Evaluate assertions against the trace and the audit log
func Run(scenario *Scenario) (*Result, error) {
	plant, err := compiler.LoadPlant(scenario.Plant)
	if err != nil {
		return nil, fmt.Errorf("failed to load plant: %w", err)
	}
	if errs := compiler.Validate(plant); len(errs) > 0 {
		return nil, fmt.Errorf("invalid plant: %w", errs[0])
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	settings := engine.DefaultSettings()
	if scenario.Tier != "" {
		tier, err := ir.ParseTier(scenario.Tier)
		if err != nil {
			return nil, fmt.Errorf("tier: %w", err)
		}
		settings.Tier = tier
	}

	h := &Harness{
		plant:    plant,
		store:    st,
		clock:    testutil.NewWallClock(scenario.Start),
		board:    fleet.NewBoard(),
		units:    make(map[string]*engine.Executive, len(plant.Units)),
		settings: settings,
		runID:    testutil.FixedRunID(scenario.RunID).Generate(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.buildUnits()

	ctx := context.Background()
	result := NewResult(h.runID)
	if err := h.executeSteps(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) buildUnits() {
	budget := h.plant.Capacity()
	for _, u := range h.plant.Units {
		h.units[u.ID] = engine.NewExecutive(u, budget, h.settings, engine.WithNow(h.clock.Now))
		integrityScore := u.InitialIntegrity
		if integrityScore <= 0 {
			integrityScore = 100
		}
		h.board.Publish(ir.UnitStatus{
			ID:             u.ID,
			MaxCapacityMw:  u.MaxCapacityMw,
			IntegrityScore: integrityScore,
			Condition:      ir.ConditionOptimal,
		})
	}
}

// executeSteps feeds every step to its unit in order.
func (h *Harness) executeSteps(ctx context.Context, scenario *Scenario, result *Result) error {
	start := h.clock.Now()
	for i, step := range scenario.Steps {
		x, ok := h.units[step.Unit]
		if !ok {
			return fmt.Errorf("steps[%d]: unit %q is not in plant %s", i, step.Unit, h.plant.Name)
		}

		t := step.Telemetry
		t.UnitID = step.Unit
		if t.Timestamp.IsZero() {
			t.Timestamp = start.Add(step.At)
		}
		lag := step.Lag
		if lag == 0 {
			lag = DefaultLag
		}
		h.clock.Set(start.Add(step.At).Add(lag))

		md := ir.Metadata{IsReplay: step.Replay, Fleet: h.board.Snapshot()}
		if step.Tier != "" {
			tier, err := ir.ParseTier(step.Tier)
			if err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			md.Tier = tier
		}

		out := x.ExecuteCycle(t, md)
		h.board.Publish(x.Status(out.Decision))

		for _, ev := range out.Events {
			if ev.Kind != ir.EventAudit {
				continue
			}
			if err := h.store.RecordDecision(ctx, h.runID, *ev.Audit); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}

		event := newTraceEvent(i, out.Decision, out.Events)
		result.Trace = append(result.Trace, event)
		if step.Expect != nil {
			for _, msg := range checkExpect(i, event, out.Decision, step.Expect) {
				result.AddError(msg)
			}
		}

		h.logger.Info("step completed",
			"step", i,
			"unit", event.Unit,
			"seq", event.Seq,
			"mode", event.Mode,
			"emergency", event.Emergency,
		)
	}
	return nil
}

// checkExpect compares a step's decision with its expect clause and
// returns one message per mismatch.
func checkExpect(step int, got TraceEvent, d ir.ExecutiveDecision, want *Expect) []string {
	var errs []string
	fail := func(format string, args ...any) {
		prefix := fmt.Sprintf("steps[%d] (%s seq %d): ", step, got.Unit, got.Seq)
		errs = append(errs, prefix+fmt.Sprintf(format, args...))
	}

	if want.Mode != "" && string(got.Mode) != want.Mode {
		fail("expected mode %s, got %s", want.Mode, got.Mode)
	}
	if want.Emergency != "" && want.Emergency != got.Emergency {
		if got.Emergency == "" {
			fail("expected emergency stop %s, got none", want.Emergency)
		} else {
			fail("expected emergency stop %s, got %s", want.Emergency, got.Emergency)
		}
	}
	if want.TargetLoadMw != nil && math.Abs(d.TargetLoadMw-*want.TargetLoadMw) > targetTolerance {
		fail("expected target %g MW, got %g MW", *want.TargetLoadMw, d.TargetLoadMw)
	}
	for _, code := range want.Protections {
		if !got.hasProtection(code) {
			fail("expected protection %s, got %v", code, got.Protections)
		}
	}
	if want.Events != nil && !slices.Equal(want.Events, got.Events) {
		fail("expected events %v, got %v", want.Events, got.Events)
	}
	return errs
}
