package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/hydroexec/internal/ir"
)

// FaultError is returned by the engine surface when a sample cannot be
// accepted at all. Faults inside a cycle never surface as errors: they
// become an emergency decision instead.
type FaultError struct {
	// Code identifies the error category.
	Code FaultCode

	// Message is a human-readable description.
	Message string

	// Unit identifies the affected unit, when known.
	Unit string
}

// FaultCode categorizes engine faults.
type FaultCode string

const (
	// ErrCodeStaleTelemetry marks a sample rejected by the liveness guard.
	ErrCodeStaleTelemetry FaultCode = "STALE_TELEMETRY"

	// ErrCodePhysicsBreach marks a family or interlock boundary breach.
	ErrCodePhysicsBreach FaultCode = "PHYSICS_BREACH"

	// ErrCodeQueueStopped marks a submit after Stop.
	ErrCodeQueueStopped FaultCode = "QUEUE_STOPPED"

	// ErrCodeUnknownUnit marks a sample for a unit the plant does not define.
	ErrCodeUnknownUnit FaultCode = "UNKNOWN_UNIT"
)

// Error implements the error interface.
func (e *FaultError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s: %s (unit=%s)", e.Code, e.Message, e.Unit)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code FaultCode) bool {
	var fe *FaultError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsStopped reports whether err was caused by submitting after Stop.
func IsStopped(err error) bool { return hasCode(err, ErrCodeQueueStopped) }

// IsUnknownUnit reports whether err names a unit missing from the plant.
func IsUnknownUnit(err error) bool { return hasCode(err, ErrCodeUnknownUnit) }

// NewQueueStoppedError creates a FaultError for a submit after Stop.
func NewQueueStoppedError(unitID string) *FaultError {
	return &FaultError{
		Code:    ErrCodeQueueStopped,
		Message: "engine is stopped",
		Unit:    unitID,
	}
}

// NewUnknownUnitError creates a FaultError for an undefined unit.
func NewUnknownUnitError(unitID string) *FaultError {
	return &FaultError{
		Code:    ErrCodeUnknownUnit,
		Message: "unit is not part of the plant",
		Unit:    unitID,
	}
}

// FaultCodeFor maps an emergency source to the fault category that
// describes it in logs and metrics.
func FaultCodeFor(src ir.FaultSource) FaultCode {
	if src == ir.SourcePhysics {
		return ErrCodePhysicsBreach
	}
	return ErrCodeStaleTelemetry
}
