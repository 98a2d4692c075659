// Package querysql compiles audit filter queries to parameterised SQLite.
package querysql

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/hydroexec/internal/queryir"
)

// Table is the audit table every query reads.
const Table = "decisions"

// Columns is the projection of every compiled query, in scan order.
var Columns = []string{"run_id", "decision", "telemetry", "tier", "fleet", "evaluated_at", "nonfinite"}

// orderBy is appended to every query so reads are deterministic.
const orderBy = " ORDER BY seq ASC, unit_id COLLATE BINARY ASC, run_id COLLATE BINARY ASC"

// Compile converts a validated query to SQL and its positional parameters.
// Values are never interpolated into the SQL text.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(Table)

	params := []any{}
	if sel.Filter != nil {
		where, whereParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = append(params, whereParams...)
	}

	b.WriteString(orderBy)

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, int64(sel.Limit))
	}
	return b.String(), params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.Range:
		return compileRange(pred)
	case *queryir.Range:
		return compileRange(*pred)
	case queryir.HasProtection:
		return compileProtection(pred)
	case *queryir.HasProtection:
		return compileProtection(*pred)
	case queryir.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param := eq.Value
	if v, ok := param.(int); ok {
		param = int64(v)
	}
	return fmt.Sprintf("%s = ?", eq.Field), []any{param}, nil
}

func compileRange(r queryir.Range) (string, []any, error) {
	kind, _ := queryir.KindOf(r.Field)
	var parts []string
	var params []any
	if r.Min != nil {
		parts = append(parts, fmt.Sprintf("%s >= ?", r.Field))
		params = append(params, boundParam(kind, *r.Min, math.Ceil))
	}
	if r.Max != nil {
		parts = append(parts, fmt.Sprintf("%s <= ?", r.Field))
		params = append(params, boundParam(kind, *r.Max, math.Floor))
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// boundParam rounds a bound inward for integer columns so 2.5 <= seq
// selects seq 3 onwards.
func boundParam(kind queryir.Kind, v float64, round func(float64) float64) any {
	if kind == queryir.KindInt {
		return int64(round(v))
	}
	return v
}

func compileProtection(h queryir.HasProtection) (string, []any, error) {
	return "EXISTS (SELECT 1 FROM json_each(" + Table + ".protections) WHERE json_each.value = ?)",
		[]any{h.Code}, nil
}

func compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}
