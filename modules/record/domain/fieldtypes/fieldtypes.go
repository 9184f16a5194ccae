package fieldtypes

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jacksonlee411/recordhub/modules/record/domain/metadata"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
)

// Fragment is the comparison used to look up records holding the same
// value for a field: the attributes to load and the predicate to match.
type Fragment struct {
	Select []string
	Where  types.WhereItem
}

// Strategy compares values of one field kind.
type Strategy interface {
	// Attributes lists the stored attributes that make up field.
	Attributes(field string) []string
	// UniqueFragment builds the lookup for the value of field in data. It
	// reports false when data holds no comparable value.
	UniqueFragment(field string, data map[string]any) (Fragment, bool)
	// Equals reports whether candidate holds the same value of field as data.
	Equals(field string, candidate *types.Entity, data map[string]any) bool
}

type Registry struct {
	byType   map[string]Strategy
	fallback Strategy
}

func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Strategy), fallback: Scalar{}}
	r.Register(metadata.FieldTypeLink, Link{})
	r.Register(metadata.FieldTypeUnit, Composite{Suffix: "Unit"})
	r.Register(metadata.FieldTypeCurrency, Composite{Suffix: "Currency"})
	return r
}

// Register binds fieldType to s. Registration happens during start-up only.
func (r *Registry) Register(fieldType string, s Strategy) {
	r.byType[fieldType] = s
}

func (r *Registry) For(fieldType string) Strategy {
	if s, ok := r.byType[fieldType]; ok {
		return s
	}
	return r.fallback
}

type Scalar struct{}

func (Scalar) Attributes(field string) []string { return []string{field} }

func (Scalar) UniqueFragment(field string, data map[string]any) (Fragment, bool) {
	v, ok := data[field]
	if !ok || isEmpty(v) {
		return Fragment{}, false
	}
	return Fragment{Select: []string{field}, Where: matchValue(field, v)}, true
}

func (Scalar) Equals(field string, candidate *types.Entity, data map[string]any) bool {
	got, _ := candidate.Get(field)
	return LooseEqual(got, data[field])
}

// Link compares the id attribute of a belongs-to style field.
type Link struct{}

func (Link) Attributes(field string) []string { return []string{field + "Id"} }

func (l Link) UniqueFragment(field string, data map[string]any) (Fragment, bool) {
	return Scalar{}.UniqueFragment(field+"Id", data)
}

func (l Link) Equals(field string, candidate *types.Entity, data map[string]any) bool {
	return Scalar{}.Equals(field+"Id", candidate, data)
}

// Composite compares a value attribute together with an auxiliary attribute
// named field+Suffix, such as a magnitude and its unit. Both must match.
type Composite struct {
	Suffix string
}

func (c Composite) Attributes(field string) []string {
	return []string{field, field + c.Suffix}
}

func (c Composite) UniqueFragment(field string, data map[string]any) (Fragment, bool) {
	v, ok := data[field]
	if !ok || isEmpty(v) {
		return Fragment{}, false
	}
	aux := field + c.Suffix
	auxItem := types.IsNull(aux)
	if u := data[aux]; !isEmpty(u) {
		auxItem = matchValue(aux, u)
	}
	return Fragment{
		Select: c.Attributes(field),
		Where:  types.And(matchValue(field, v), auxItem),
	}, true
}

func (c Composite) Equals(field string, candidate *types.Entity, data map[string]any) bool {
	aux := field + c.Suffix
	gotValue, _ := candidate.Get(field)
	gotAux, _ := candidate.Get(aux)
	return LooseEqual(gotValue, data[field]) && LooseEqual(gotAux, data[aux])
}

// matchValue selects stored values LooseEqual accepts for v. A numeric value
// may be stored as a number or as its string form, so both are matched.
func matchValue(attribute string, v any) types.WhereItem {
	f, ok := ToFloat(v)
	if !ok {
		return types.Equals(attribute, v)
	}
	forms := []any{f, strconv.FormatFloat(f, 'f', -1, 64)}
	if s, isString := v.(string); isString && s != forms[1] {
		forms = append(forms, s)
	}
	return types.In(attribute, forms...)
}

// LooseEqual compares two attribute values the way submitted form data is
// compared with stored data: nil and "" are equal, and numbers compare by
// value whether they arrive as numbers or numeric strings.
func LooseEqual(a, b any) bool {
	if isEmpty(a) || isEmpty(b) {
		return isEmpty(a) && isEmpty(b)
	}
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa == fb
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		ab, errA := json.Marshal(a)
		bb, errB := json.Marshal(b)
		return errA == nil && errB == nil && string(ab) == string(bb)
	}
}

func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
