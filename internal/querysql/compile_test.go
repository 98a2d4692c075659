package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/queryir"
)

const selectPrefix = "SELECT run_id, decision, telemetry, tier, fleet, evaluated_at, nonfinite FROM decisions"

func TestCompile_NoFilter(t *testing.T) {
	sql, params, err := Compile(queryir.Select{})
	require.NoError(t, err)

	assert.Equal(t, selectPrefix+orderBy, sql)
	assert.Empty(t, params)
}

func TestCompile_Equals(t *testing.T) {
	sql, params, err := Compile(&queryir.Select{
		Filter: &queryir.Equals{Field: queryir.FieldUnit, Value: "U1"},
	})
	require.NoError(t, err)

	assert.Equal(t, selectPrefix+" WHERE unit_id = ?"+orderBy, sql)
	assert.NotContains(t, sql, "U1")
	assert.Equal(t, []any{"U1"}, params)
}

func TestCompile_IntValueWidened(t *testing.T) {
	_, params, err := Compile(queryir.Select{
		Filter: queryir.Equals{Field: queryir.FieldSeq, Value: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, params)
}

func TestCompile_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		rng    queryir.Range
		where  string
		params []any
	}{
		{
			name:   "closed seq range",
			rng:    queryir.Range{Field: queryir.FieldSeq, Min: queryir.Bound(2), Max: queryir.Bound(5)},
			where:  "(seq >= ? AND seq <= ?)",
			params: []any{int64(2), int64(5)},
		},
		{
			name:   "fractional bounds round inward",
			rng:    queryir.Range{Field: queryir.FieldSeq, Min: queryir.Bound(2.5), Max: queryir.Bound(5.5)},
			where:  "(seq >= ? AND seq <= ?)",
			params: []any{int64(3), int64(5)},
		},
		{
			name:   "open upper",
			rng:    queryir.Range{Field: queryir.FieldSeq, Min: queryir.Bound(7)},
			where:  "(seq >= ?)",
			params: []any{int64(7)},
		},
		{
			name:   "float field",
			rng:    queryir.Range{Field: queryir.FieldHealth, Max: queryir.Bound(40.5)},
			where:  "(master_health <= ?)",
			params: []any{40.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := Compile(queryir.Select{Filter: tt.rng})
			require.NoError(t, err)
			assert.Equal(t, selectPrefix+" WHERE "+tt.where+orderBy, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_HasProtection(t *testing.T) {
	sql, params, err := Compile(queryir.Select{
		Filter: queryir.HasProtection{Code: "VIBRATION_CAP"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "json_each(decisions.protections)")
	assert.NotContains(t, sql, "VIBRATION_CAP")
	assert.Equal(t, []any{"VIBRATION_CAP"}, params)
}

func TestCompile_NestedJunctions(t *testing.T) {
	sql, params, err := Compile(queryir.Select{
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.FieldRun, Value: "run-1"},
			queryir.Or{Predicates: []queryir.Predicate{
				queryir.Equals{Field: queryir.FieldMode, Value: "STOP"},
				queryir.Equals{Field: queryir.FieldEmergency, Value: true},
			}},
		}},
		Limit: 10,
	})
	require.NoError(t, err)

	assert.Equal(t,
		selectPrefix+" WHERE (run_id = ? AND (mode = ? OR emergency = ?))"+orderBy+" LIMIT ?",
		sql)
	assert.Equal(t, []any{"run-1", "STOP", true, int64(10)}, params)
}

func TestCompile_EmptyJunctions(t *testing.T) {
	sql, _, err := Compile(queryir.Select{Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 1")

	sql, _, err = Compile(queryir.Select{Filter: queryir.Or{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 0")
}

func TestCompile_OrderByAlwaysPresent(t *testing.T) {
	queries := []queryir.Query{
		queryir.Select{},
		queryir.Select{Limit: 1},
		queryir.Select{Filter: queryir.HasProtection{Code: "LIVENESS"}},
	}
	for _, q := range queries {
		sql, _, err := Compile(q)
		require.NoError(t, err)
		assert.Contains(t, sql, "ORDER BY seq ASC")
		assert.Contains(t, sql, "COLLATE BINARY")
	}
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := Compile(queryir.Select{
		Filter: queryir.Equals{Field: "colour", Value: "red"},
	})
	require.Error(t, err)
	assert.True(t, queryir.IsValidationError(err))

	_, _, err = Compile(nil)
	require.Error(t, err)
}
