// Package control is the hardware-facing adapter. It receives setpoint
// proposals from AUTONOMOUS cycles, re-validates live stability, and only
// then forwards them to an Actuator. The executive never learns whether a
// proposal was applied.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/roach88/hydroexec/internal/ir"
)

// Actuator applies a setpoint to plant hardware.
type Actuator interface {
	Apply(ctx context.Context, unitID string, p ir.ControlProposal) error
}

// Limits are the live stability conditions a proposal must satisfy.
type Limits struct {
	MaxVibrationMmS    float64
	NominalFrequencyHz float64
	FrequencyBandHz    float64
}

// DefaultLimits returns the standard stability window.
func DefaultLimits() Limits {
	return Limits{MaxVibrationMmS: 1.5, NominalFrequencyHz: 50, FrequencyBandHz: 0.2}
}

// Result reports what the adapter did with a proposal.
type Result struct {
	Applied bool
	Reason  string
}

// Adapter validates and forwards proposals.
//
// Thread-safe: Apply may be called from any goroutine; SetLimits swaps the
// limits atomically with respect to Apply.
type Adapter struct {
	act Actuator

	mu     sync.RWMutex
	limits Limits
}

// NewAdapter creates an adapter over act.
func NewAdapter(act Actuator, limits Limits) *Adapter {
	return &Adapter{act: act, limits: limits}
}

// SetLimits replaces the stability limits. Used on config reload.
func (a *Adapter) SetLimits(l Limits) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limits = l
}

// Validate checks a proposal against the live stability limits. A grid
// frequency of 0 means not reported and skips the frequency check.
func (a *Adapter) Validate(p ir.ControlProposal) error {
	a.mu.RLock()
	l := a.limits
	a.mu.RUnlock()

	if p.VibrationMmS > l.MaxVibrationMmS {
		return fmt.Errorf("vibration %.2f mm/s above %.2f", p.VibrationMmS, l.MaxVibrationMmS)
	}
	if p.GridFrequencyHz != 0 && math.Abs(p.GridFrequencyHz-l.NominalFrequencyHz) > l.FrequencyBandHz {
		return fmt.Errorf("grid frequency %.2f Hz outside %.2f±%.2f", p.GridFrequencyHz, l.NominalFrequencyHz, l.FrequencyBandHz)
	}
	if p.TargetLoadMw < 0 || math.IsNaN(p.TargetLoadMw) || math.IsInf(p.TargetLoadMw, 0) {
		return fmt.Errorf("target %.2f MW not applicable", p.TargetLoadMw)
	}
	return nil
}

// Apply validates p and forwards it to the actuator. A rejected proposal is
// not an error: it is reported in the Result.
func (a *Adapter) Apply(ctx context.Context, unitID string, p ir.ControlProposal) (Result, error) {
	if err := a.Validate(p); err != nil {
		slog.Warn("control: proposal rejected", "unit", unitID, "reason", err)
		return Result{Reason: err.Error()}, nil
	}
	if err := a.act.Apply(ctx, unitID, p); err != nil {
		return Result{Reason: "actuator failed"}, fmt.Errorf("control: apply %s: %w", unitID, err)
	}
	slog.Info("control: setpoint applied",
		"unit", unitID,
		"target_mw", p.TargetLoadMw,
		"nozzles", p.ActiveNozzles,
	)
	return Result{Applied: true}, nil
}

// LogActuator is an Actuator that only logs. It is the default when no
// hardware link is configured.
type LogActuator struct{}

func (LogActuator) Apply(_ context.Context, unitID string, p ir.ControlProposal) error {
	slog.Info("control: dry-run actuator",
		"unit", unitID,
		"target_mw", p.TargetLoadMw,
		"nozzles", p.ActiveNozzles,
		"order", p.SequenceOrder,
	)
	return nil
}
