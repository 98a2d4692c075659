package ir

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCycle    = "hydroexec/cycle/v1"
	DomainDecision = "hydroexec/decision/v1"
)

// hashWithDomain computes BLAKE3(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CycleID computes the content-addressed ID of a cycle.
// The ID is stable across restarts given the same unit, seq, replay flag
// and sample, so re-recording a replayed cycle is idempotent.
func CycleID(unitID string, seq int64, replay bool, t Telemetry) (string, error) {
	obj := struct {
		UnitID    string    `json:"unit_id"`
		Seq       int64     `json:"seq"`
		Replay    bool      `json:"replay"`
		Telemetry Telemetry `json:"telemetry"`
	}{unitID, seq, replay, t}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CycleID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCycle, canonical), nil
}

// DecisionDigest hashes a decision for replay comparison.
// Two cycles that produced the same decision have the same digest.
func DecisionDigest(d ExecutiveDecision) (string, error) {
	canonical, err := MarshalCanonical(d)
	if err != nil {
		return "", fmt.Errorf("DecisionDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDecision, canonical), nil
}
