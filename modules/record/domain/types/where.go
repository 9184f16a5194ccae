package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const (
	WhereEquals              = "equals"
	WhereNotEquals           = "notEquals"
	WhereLike                = "like"
	WhereNotLike             = "notLike"
	WhereIn                  = "in"
	WhereNotIn               = "notIn"
	WhereIsNull              = "isNull"
	WhereIsNotNull           = "isNotNull"
	WhereIsTrue              = "isTrue"
	WhereIsFalse             = "isFalse"
	WhereGreaterThan         = "greaterThan"
	WhereLessThan            = "lessThan"
	WhereGreaterThanOrEquals = "greaterThanOrEquals"
	WhereLessThanOrEquals    = "lessThanOrEquals"
	WhereBetween             = "between"
	WhereAnd                 = "and"
	WhereOr                  = "or"
	WhereLinkedWith          = "linkedWith"
	WhereNotLinkedWith       = "notLinkedWith"
)

const maxWhereDepth = 16

var attributeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func IsAttributeName(s string) bool {
	return attributeNamePattern.MatchString(s)
}

// Where is a predicate tree. Top-level items are combined with AND.
type Where []WhereItem

// WhereItem is one predicate node. Group nodes (and/or) carry their children
// in Items; leaf nodes compare Attribute against Value.
type WhereItem struct {
	Type      string
	Attribute string
	Value     any
	Items     []WhereItem
}

type whereItemJSON struct {
	Type      string          `json:"type"`
	Attribute string          `json:"attribute,omitempty"`
	Field     string          `json:"field,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

func (w *WhereItem) UnmarshalJSON(b []byte) error {
	var raw whereItemJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	w.Type = raw.Type
	w.Attribute = raw.Attribute
	if w.Attribute == "" {
		w.Attribute = raw.Field
	}
	if len(raw.Value) == 0 || bytes.Equal(raw.Value, []byte("null")) {
		return nil
	}
	if IsGroupType(raw.Type) {
		return json.Unmarshal(raw.Value, &w.Items)
	}
	return json.Unmarshal(raw.Value, &w.Value)
}

func (w WhereItem) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": w.Type}
	if w.Attribute != "" {
		out["attribute"] = w.Attribute
	}
	switch {
	case IsGroupType(w.Type):
		items := w.Items
		if items == nil {
			items = []WhereItem{}
		}
		out["value"] = items
	case w.Value != nil:
		out["value"] = w.Value
	}
	return json.Marshal(out)
}

func IsGroupType(t string) bool {
	return t == WhereAnd || t == WhereOr
}

// ParseWhere decodes and validates a predicate. Empty input and JSON null
// yield a nil Where; an empty array yields a non-nil empty Where.
func ParseWhere(raw []byte) (Where, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, httperr.NewBadRequest("where: array expected")
	}
	var w Where
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, httperr.NewBadRequest("where: invalid json")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w Where) Validate() error {
	for i := range w {
		if err := w[i].validate(0); err != nil {
			return err
		}
	}
	return nil
}

// And returns a new predicate requiring both w and other.
func (w Where) And(other Where) Where {
	out := make(Where, 0, len(w)+len(other))
	out = append(out, w...)
	return append(out, other...)
}

func (it WhereItem) validate(depth int) error {
	if depth > maxWhereDepth {
		return httperr.NewBadRequest("where: nesting too deep")
	}
	if IsGroupType(it.Type) {
		if len(it.Items) == 0 {
			return httperr.NewBadRequest(fmt.Sprintf("where: %s requires nested items", it.Type))
		}
		for i := range it.Items {
			if err := it.Items[i].validate(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if !IsAttributeName(it.Attribute) {
		return httperr.NewBadRequest(fmt.Sprintf("where: invalid attribute %q", it.Attribute))
	}
	switch it.Type {
	case WhereIsNull, WhereIsNotNull, WhereIsTrue, WhereIsFalse:
		return nil
	case WhereEquals, WhereNotEquals, WhereGreaterThan, WhereLessThan, WhereGreaterThanOrEquals, WhereLessThanOrEquals:
		if !IsScalar(it.Value) {
			return httperr.NewBadRequest(fmt.Sprintf("where: %s on %q requires a scalar value", it.Type, it.Attribute))
		}
	case WhereLike, WhereNotLike:
		if _, ok := it.Value.(string); !ok {
			return httperr.NewBadRequest(fmt.Sprintf("where: %s on %q requires a string value", it.Type, it.Attribute))
		}
	case WhereIn, WhereNotIn:
		list, ok := ListValue(it.Value)
		if !ok {
			return httperr.NewBadRequest(fmt.Sprintf("where: %s on %q requires an array value", it.Type, it.Attribute))
		}
		for _, v := range list {
			if !IsScalar(v) {
				return httperr.NewBadRequest(fmt.Sprintf("where: %s on %q requires scalar members", it.Type, it.Attribute))
			}
		}
	case WhereBetween:
		list, ok := ListValue(it.Value)
		if !ok || len(list) != 2 || !IsScalar(list[0]) || !IsScalar(list[1]) {
			return httperr.NewBadRequest(fmt.Sprintf("where: between on %q requires [from, to]", it.Attribute))
		}
	case WhereLinkedWith, WhereNotLinkedWith:
		if _, err := LinkedIDs(it.Value); err != nil {
			return err
		}
	default:
		return httperr.NewBadRequest(fmt.Sprintf("where: unknown type %q", it.Type))
	}
	return nil
}

func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}

// ListValue reports v as a slice when it is an array value.
func ListValue(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// LinkedIDs normalizes the value of a linkedWith item to an id list.
func LinkedIDs(v any) ([]string, error) {
	if s, ok := v.(string); ok && s != "" {
		return []string{s}, nil
	}
	list, ok := ListValue(v)
	if !ok || len(list) == 0 {
		return nil, httperr.NewBadRequest("where: linkedWith requires an id or id list")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, httperr.NewBadRequest("where: linkedWith requires string ids")
		}
		out = append(out, s)
	}
	return out, nil
}

func Equals(attribute string, value any) WhereItem {
	return WhereItem{Type: WhereEquals, Attribute: attribute, Value: value}
}

func In(attribute string, values ...any) WhereItem {
	return WhereItem{Type: WhereIn, Attribute: attribute, Value: values}
}

func Like(attribute string, pattern string) WhereItem {
	return WhereItem{Type: WhereLike, Attribute: attribute, Value: pattern}
}

func IsNull(attribute string) WhereItem {
	return WhereItem{Type: WhereIsNull, Attribute: attribute}
}

func And(items ...WhereItem) WhereItem {
	return WhereItem{Type: WhereAnd, Items: items}
}

func Or(items ...WhereItem) WhereItem {
	return WhereItem{Type: WhereOr, Items: items}
}

func IDsIn(ids []string) WhereItem {
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	return In(AttributeID, values...)
}
