package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/hydroexec/internal/queryir"
	"github.com/roach88/hydroexec/internal/store"
)

// whereProtection is the audit_count key matched against protection codes
// instead of a column.
const whereProtection = "protection"

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s seq=%d %s", ev.Step, ev.Unit, ev.Seq, ev.Mode)
			if ev.Emergency != "" {
				fmt.Fprintf(&buf, " emergency=%s", ev.Emergency)
			}
			fmt.Fprintf(&buf, " events=%v\n", ev.Events)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure. st is the audit log the scenario wrote.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, st *store.Store) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertModeSequence:
			err = assertModeSequence(result.Trace, a)
		case AssertEmergencyCount:
			err = assertEmergencyCount(result.Trace, a)
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertProtectionCount:
			err = assertProtectionCount(result.Trace, a)
		case AssertAuditCount:
			err = assertAuditCount(ctx, st, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertModeSequence checks the modes decided for one unit, in order.
func assertModeSequence(trace []TraceEvent, a Assertion) error {
	got := make([]string, 0, len(a.Modes))
	for _, ev := range trace {
		if ev.Unit == a.Unit {
			got = append(got, string(ev.Mode))
		}
	}
	if strings.Join(got, ",") == strings.Join(a.Modes, ",") {
		return nil
	}
	return &AssertionError{
		Type:     AssertModeSequence,
		Expected: fmt.Sprintf("%s modes %v", a.Unit, a.Modes),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// assertEmergencyCount counts emergency decisions, optionally restricted
// to one unit and one reason.
func assertEmergencyCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Emergency == "" || !unitMatches(ev, a) {
			continue
		}
		if a.Reason != "" && ev.Emergency != a.Reason {
			continue
		}
		count++
	}
	return countError(AssertEmergencyCount, describe("emergency stops", a), a.Count, count, trace)
}

// assertEventCount counts outbound events of one kind.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if unitMatches(ev, a) {
			count += ev.countEvents(a.Kind)
		}
	}
	return countError(AssertEventCount, describe(a.Kind+" events", a), a.Count, count, trace)
}

// assertProtectionCount counts decisions raising a protection code.
func assertProtectionCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if unitMatches(ev, a) && ev.hasProtection(a.Code) {
			count++
		}
	}
	return countError(AssertProtectionCount, describe("decisions raising "+a.Code, a), a.Count, count, trace)
}

// assertAuditCount counts audit log rows matching the where clause. It goes
// through the same typed query path as the trace command.
func assertAuditCount(ctx context.Context, st *store.Store, a Assertion) error {
	q, err := auditQuery(&a)
	if err != nil {
		return err
	}
	entries, err := st.QueryDecisions(ctx, q)
	if err != nil {
		return &AssertionError{
			Type:     AssertAuditCount,
			Expected: fmt.Sprintf("query audit log where %s", formatWhere(a.Where)),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if len(entries) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertAuditCount,
		Expected: fmt.Sprintf("%d audit rows where %s", a.Count, formatWhere(a.Where)),
		Actual:   fmt.Sprintf("%d rows", len(entries)),
	}
}

// auditQuery builds the typed query of an audit_count assertion. Keys are
// audit query fields plus "protection"; the assertion's unit, when set,
// becomes a unit_id filter.
func auditQuery(a *Assertion) (queryir.Query, error) {
	preds := []queryir.Predicate{}
	if a.Unit != "" {
		preds = append(preds, queryir.Equals{Field: queryir.FieldUnit, Value: a.Unit})
	}
	for _, key := range sortedKeys(a.Where) {
		value := a.Where[key]
		if key == whereProtection {
			code, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("where.%s wants a string, got %T", key, value)
			}
			preds = append(preds, queryir.HasProtection{Code: code})
			continue
		}
		field := queryir.Field(key)
		if kind, ok := queryir.KindOf(field); ok && kind == queryir.KindFloat {
			if n, isInt := value.(int); isInt {
				value = float64(n)
			}
		}
		preds = append(preds, queryir.Equals{Field: field, Value: value})
	}

	q := queryir.Select{Filter: queryir.And{Predicates: preds}}
	if err := queryir.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

func unitMatches(ev TraceEvent, a Assertion) bool {
	return a.Unit == "" || ev.Unit == a.Unit
}

func describe(what string, a Assertion) string {
	if a.Unit != "" {
		what += " on " + a.Unit
	}
	if a.Reason != "" {
		what += " with reason " + a.Reason
	}
	return what
}

func countError(typ, what string, want, got int, trace []TraceEvent) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s", want, what),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    trace,
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWhere renders a where clause in key order.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(all)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}
