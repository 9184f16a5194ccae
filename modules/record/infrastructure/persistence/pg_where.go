package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jacksonlee411/recordhub/modules/record/domain/fieldtypes"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

// sqlWhere renders predicates against the records table aliased as r.
// Literal values are always passed as bind arguments.
type sqlWhere struct {
	args []any
}

func newSQLWhere(args ...any) *sqlWhere {
	return &sqlWhere{args: args}
}

func (s *sqlWhere) bind(v any) string {
	s.args = append(s.args, v)
	return "$" + strconv.Itoa(len(s.args))
}

func (s *sqlWhere) bindJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", httperr.NewBadRequest("where: value is not encodable")
	}
	return s.bind(string(b)) + "::text::jsonb", nil
}

func (s *sqlWhere) group(items []types.WhereItem, op string) (string, error) {
	if len(items) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		p, err := s.item(it)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

func (s *sqlWhere) item(it types.WhereItem) (string, error) {
	switch it.Type {
	case types.WhereAnd:
		return s.group(it.Items, " AND ")
	case types.WhereOr:
		return s.group(it.Items, " OR ")
	}
	if !types.IsAttributeName(it.Attribute) {
		return "", httperr.NewBadRequest(fmt.Sprintf("where: invalid attribute %q", it.Attribute))
	}
	ref := "r.data->'" + it.Attribute + "'"
	text := "r.data->>'" + it.Attribute + "'"
	present := "(COALESCE(jsonb_typeof(" + ref + "), 'null') <> 'null')"

	switch it.Type {
	case types.WhereEquals:
		p, err := s.bindJSON(it.Value)
		if err != nil {
			return "", err
		}
		return "(" + ref + " = " + p + ")", nil
	case types.WhereNotEquals:
		p, err := s.bindJSON(it.Value)
		if err != nil {
			return "", err
		}
		return "(" + present + " AND " + ref + " <> " + p + ")", nil
	case types.WhereIn, types.WhereNotIn:
		list, ok := types.ListValue(it.Value)
		if !ok {
			return "", httperr.NewBadRequest("where: in requires an array")
		}
		p, err := s.bindJSON(list)
		if err != nil {
			return "", err
		}
		in := "COALESCE(" + ref + " IN (SELECT jsonb_array_elements(" + p + ")), false)"
		if it.Type == types.WhereNotIn {
			return "(NOT " + in + ")", nil
		}
		return "(" + in + ")", nil
	case types.WhereIsNull:
		return "(NOT " + present + ")", nil
	case types.WhereIsNotNull:
		return present, nil
	case types.WhereIsTrue:
		return "(" + ref + " = 'true'::jsonb)", nil
	case types.WhereIsFalse:
		return "(NOT " + present + " OR " + ref + " = 'false'::jsonb)", nil
	case types.WhereGreaterThan:
		return s.compare(ref, text, ">", it.Value)
	case types.WhereLessThan:
		return s.compare(ref, text, "<", it.Value)
	case types.WhereGreaterThanOrEquals:
		return s.compare(ref, text, ">=", it.Value)
	case types.WhereLessThanOrEquals:
		return s.compare(ref, text, "<=", it.Value)
	case types.WhereBetween:
		bounds, ok := types.ListValue(it.Value)
		if !ok || len(bounds) != 2 {
			return "", httperr.NewBadRequest("where: between requires [from, to]")
		}
		from, err := s.compare(ref, text, ">=", bounds[0])
		if err != nil {
			return "", err
		}
		to, err := s.compare(ref, text, "<=", bounds[1])
		if err != nil {
			return "", err
		}
		return "(" + from + " AND " + to + ")", nil
	case types.WhereLike:
		pattern, ok := it.Value.(string)
		if !ok {
			return "", httperr.NewBadRequest("where: like requires a string")
		}
		return "(" + text + " ILIKE " + s.bind(pattern) + ")", nil
	case types.WhereNotLike:
		pattern, ok := it.Value.(string)
		if !ok {
			return "", httperr.NewBadRequest("where: like requires a string")
		}
		return "(NOT COALESCE(" + text + " ILIKE " + s.bind(pattern) + ", false))", nil
	case types.WhereLinkedWith, types.WhereNotLinkedWith:
		ids, err := types.LinkedIDs(it.Value)
		if err != nil {
			return "", err
		}
		exists := "EXISTS (SELECT 1 FROM record_relations rr WHERE rr.tenant_id = r.tenant_id" +
			" AND rr.entity_type = r.entity_type AND rr.entity_id = r.id" +
			" AND rr.link = " + s.bind(it.Attribute) +
			" AND rr.foreign_id = ANY(" + s.bind(ids) + "::text[]))"
		if it.Type == types.WhereNotLinkedWith {
			return "(NOT " + exists + ")", nil
		}
		return exists, nil
	default:
		return "", httperr.NewBadRequest(fmt.Sprintf("where: unknown type %q", it.Type))
	}
}

// compare orders numbers numerically and everything else as text, matching
// only stored values of the same JSON kind.
func (s *sqlWhere) compare(ref string, text string, op string, v any) (string, error) {
	if !types.IsScalar(v) {
		return "", httperr.NewBadRequest("where: comparison requires a scalar")
	}
	if _, isString := v.(string); !isString {
		if f, ok := fieldtypes.ToFloat(v); ok {
			return "(jsonb_typeof(" + ref + ") = 'number' AND (" + text + ")::numeric " + op + " " + s.bind(f) + "::numeric)", nil
		}
	}
	return "(jsonb_typeof(" + ref + ") = 'string' AND " + text + " " + op + " " + s.bind(fmt.Sprint(v)) + "::text)", nil
}

func orderByClause(sortBy string, asc bool) (string, error) {
	dir := "DESC NULLS LAST"
	if asc {
		dir = "ASC NULLS FIRST"
	}
	if sortBy == "" || sortBy == types.AttributeID {
		return "r.id " + strings.Fields(dir)[0], nil
	}
	if !types.IsAttributeName(sortBy) {
		return "", httperr.NewBadRequest(fmt.Sprintf("invalid sortBy %q", sortBy))
	}
	return "r.data->'" + sortBy + "' " + dir + ", r.id", nil
}
