package engine

import (
	"fmt"
	"time"

	"github.com/roach88/hydroexec/internal/ir"
)

// ReplayRecord is one recorded cycle.
type ReplayRecord struct {
	Seq         int64
	Telemetry   ir.Telemetry
	Tier        ir.PermissionTier
	Fleet       []ir.UnitStatus
	EvaluatedAt time.Time
	// Replay is set when the recorded cycle itself ran in replay mode.
	Replay bool

	// Digest is the recorded decision digest. Empty skips the comparison.
	Digest string
}

// RecordFromAudit converts an audit record into a replay record.
func RecordFromAudit(rec ir.AuditRecord) (ReplayRecord, error) {
	digest, err := ir.DecisionDigest(rec.Decision)
	if err != nil {
		return ReplayRecord{}, fmt.Errorf("digest seq %d: %w", rec.Decision.Seq, err)
	}
	return ReplayRecord{
		Seq:         rec.Decision.Seq,
		Telemetry:   rec.Telemetry,
		Tier:        rec.Tier,
		Fleet:       rec.Fleet,
		EvaluatedAt: rec.EvaluatedAt,
		Replay:      rec.Decision.Replay,
		Digest:      digest,
	}, nil
}

// ReplayMismatch is a replayed decision that differs from the recording.
type ReplayMismatch struct {
	Seq      int64
	Recorded string
	Replayed string
}

// ReplayResult summarises a replay.
type ReplayResult struct {
	UnitID        string
	Cycles        int
	Deterministic bool
	Matched       int
	Mismatches    []ReplayMismatch
	Decisions     []ir.ExecutiveDecision
}

// Replay re-executes recorded telemetry for unit and checks that the
// decision core is a pure function of its inputs.
//
// A replay builds a fresh Executive for the unit, so the recording must
// start at the beginning of a run: the executive state (baseline,
// integrity, liveness watermark) is rebuilt from the samples themselves.
// Each sample is executed with IsReplay set and liveness evaluated at the
// recorded evaluation instant, so stale samples do not stop the replay;
// they are flagged MONITOR_ONLY instead.
//
// The replay runs twice. Deterministic is true when both passes produce
// identical decision digests. Each decision is also compared to the
// recorded one after restoring the recording's replay marking (Replay flag
// and the replay bit of the cycle ID); samples that stopped the live run
// will not match, since replay tolerates staleness.
func Replay(unit ir.UnitSpec, plantCapacityMw float64, s Settings, records []ReplayRecord) (ReplayResult, error) {
	res := ReplayResult{UnitID: unit.ID, Cycles: len(records)}

	first, err := replayPass(unit, plantCapacityMw, s, records)
	if err != nil {
		return res, err
	}
	second, err := replayPass(unit, plantCapacityMw, s, records)
	if err != nil {
		return res, err
	}

	res.Deterministic = true
	for i := range first {
		if first[i].digest != second[i].digest {
			res.Deterministic = false
		}
		res.Decisions = append(res.Decisions, first[i].decision)

		want := records[i].Digest
		if want == "" {
			continue
		}
		if first[i].recorded == want {
			res.Matched++
		} else {
			res.Mismatches = append(res.Mismatches, ReplayMismatch{
				Seq:      records[i].Seq,
				Recorded: want,
				Replayed: first[i].recorded,
			})
		}
	}
	return res, nil
}

type replayed struct {
	decision ir.ExecutiveDecision
	digest   string
	recorded string
}

func replayPass(unit ir.UnitSpec, plantCapacityMw float64, s Settings, records []ReplayRecord) ([]replayed, error) {
	var start int64
	if len(records) > 0 && records[0].Seq > 0 {
		start = records[0].Seq - 1
	}
	x := NewExecutive(unit, plantCapacityMw, s,
		WithClock(NewClockAt(start, nil)),
		WithNow(func() time.Time { return time.Time{} }),
	)

	out := make([]replayed, 0, len(records))
	for _, r := range records {
		o := x.ExecuteCycle(r.Telemetry, ir.Metadata{
			IsReplay:       true,
			Tier:           r.Tier,
			SimulationTime: r.EvaluatedAt,
			Fleet:          r.Fleet,
		})
		d := o.Decision
		digest, err := ir.DecisionDigest(d)
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", d.Seq, err)
		}
		recorded, err := recordedDigest(d, r)
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", d.Seq, err)
		}
		out = append(out, replayed{decision: d, digest: digest, recorded: recorded})
	}
	return out, nil
}

// recordedDigest is the digest the decision would have had under the
// recording's own replay marking.
func recordedDigest(d ir.ExecutiveDecision, r ReplayRecord) (string, error) {
	t := r.Telemetry
	if t.UnitID == "" {
		t.UnitID = d.UnitID
	}
	d.Replay = r.Replay
	d.CycleID = cycleID(d.UnitID, d.Seq, r.Replay, t)
	return ir.DecisionDigest(d)
}
