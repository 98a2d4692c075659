package queryir

// Field names a filterable column of an audit record.
type Field string

const (
	FieldRun       Field = "run_id"
	FieldUnit      Field = "unit_id"
	FieldCycle     Field = "cycle_id"
	FieldSeq       Field = "seq"
	FieldMode      Field = "mode"
	FieldTier      Field = "tier"
	FieldEmergency Field = "emergency"
	FieldReason    Field = "emergency_reason"
	FieldTargetMw  Field = "target_load_mw"
	FieldHealth    Field = "master_health"
)

// Kind is the value type a field accepts.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

var fieldKinds = map[Field]Kind{
	FieldRun:       KindString,
	FieldUnit:      KindString,
	FieldCycle:     KindString,
	FieldSeq:       KindInt,
	FieldMode:      KindString,
	FieldTier:      KindString,
	FieldEmergency: KindBool,
	FieldReason:    KindString,
	FieldTargetMw:  KindFloat,
	FieldHealth:    KindFloat,
}

// KindOf returns the value kind of f and whether f is a known field.
func KindOf(f Field) (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// Query is a sealed interface for query nodes.
type Query interface {
	queryNode()
}

// Select reads audit records matching Filter.
// A nil Filter matches every record. Limit <= 0 means no limit.
type Select struct {
	Filter Predicate
	Limit  int
}

func (Select) queryNode() {}

// Predicate is a sealed interface for filter nodes.
type Predicate interface {
	predicateNode()
}

// Equals matches records whose Field equals Value.
// Value is a string, int64, float64 or bool according to the field kind.
type Equals struct {
	Field Field
	Value any
}

func (Equals) predicateNode() {}

// Range matches records with Min <= Field <= Max. A nil bound leaves that
// side open. Only numeric fields accept a range.
type Range struct {
	Field Field
	Min   *float64
	Max   *float64
}

func (Range) predicateNode() {}

// Bound returns a pointer to v for use as a Range bound.
func Bound(v float64) *float64 {
	return &v
}

// HasProtection matches records whose active protections include Code.
type HasProtection struct {
	Code string
}

func (HasProtection) predicateNode() {}

// And is a conjunction. An empty And matches every record.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction. An empty Or matches no record.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}
