package queryir

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks that every predicate names a known field with a value of
// the right kind. It returns a *ValidationError describing all problems, or
// nil.
func Validate(q Query) error {
	v := &validator{}
	v.validateQuery(q)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addf("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addf("nil query")
	default:
		v.addf("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.Limit < 0 {
		v.addf("negative limit %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case Range:
		v.validateRange(pred)
	case *Range:
		v.validateRange(*pred)
	case HasProtection:
		v.validateProtection(pred)
	case *HasProtection:
		v.validateProtection(*pred)
	case And:
		v.validateAll(pred.Predicates)
	case *And:
		v.validateAll(pred.Predicates)
	case Or:
		v.validateAll(pred.Predicates)
	case *Or:
		v.validateAll(pred.Predicates)
	case nil:
		v.addf("nil predicate")
	default:
		v.addf("unknown predicate type %T", p)
	}
}

func (v *validator) validateAll(preds []Predicate) {
	for _, p := range preds {
		v.validatePredicate(p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	kind, ok := KindOf(eq.Field)
	if !ok {
		v.addf("unknown field %q", eq.Field)
		return
	}
	if got := kindOfValue(eq.Value); got != kind {
		v.addf("field %q wants %s, got %T", eq.Field, kind, eq.Value)
	}
}

func (v *validator) validateRange(r Range) {
	kind, ok := KindOf(r.Field)
	if !ok {
		v.addf("unknown field %q", r.Field)
		return
	}
	if kind != KindInt && kind != KindFloat {
		v.addf("field %q is %s and cannot take a range", r.Field, kind)
		return
	}
	if r.Min == nil && r.Max == nil {
		v.addf("range on %q has no bound", r.Field)
		return
	}
	for _, b := range []*float64{r.Min, r.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			v.addf("range on %q has a non-finite bound", r.Field)
			return
		}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		v.addf("range on %q is empty: %g > %g", r.Field, *r.Min, *r.Max)
	}
}

func (v *validator) validateProtection(h HasProtection) {
	if strings.TrimSpace(h.Code) == "" {
		v.addf("empty protection code")
	}
}

func kindOfValue(value any) Kind {
	switch value.(type) {
	case string:
		return KindString
	case int, int64:
		return KindInt
	case float64:
		return KindFloat
	case bool:
		return KindBool
	}
	return 0
}
