// Package queryir is the typed filter language for the decision audit log.
//
// A query is a Select over audit records with an optional Predicate tree.
// Predicates are sealed: only the node types declared here implement the
// Predicate interface, so every backend can switch over them exhaustively.
//
//	Select{
//	    Filter: And{Predicates: []Predicate{
//	        Equals{Field: FieldUnit, Value: "U1"},
//	        Range{Field: FieldSeq, Min: Bound(10), Max: Bound(20)},
//	        HasProtection{Code: "VIBRATION_CAP"},
//	    }},
//	    Limit: 50,
//	}
//
// Values are never spliced into backend text. The SQL backend
// (internal/querysql) turns every value into a positional parameter and
// always orders results by (seq, unit_id, run_id) so two reads of the same
// log return rows in the same order.
//
// Validate checks field names and value kinds before compilation. Compilers
// may assume a validated query.
package queryir
