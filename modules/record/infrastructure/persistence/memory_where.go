package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

// Predicates are compiled to CEL over three variables: r (record values),
// v (bound literal values) and l (link name to related ids). Literals never
// appear in the expression text, so equal predicate shapes share a program.
var newRecordCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("r", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("v", cel.ListType(cel.DynType)),
		cel.Variable("l", cel.MapType(cel.StringType, cel.ListType(cel.StringType))),
	)
}

type celPredicate struct {
	expr     string
	values   []any
	useLinks bool
}

type celCompiler struct {
	values   []any
	useLinks bool
}

func compileCELPredicate(w types.Where) (celPredicate, error) {
	c := &celCompiler{}
	expr, err := c.group(w, " && ")
	if err != nil {
		return celPredicate{}, err
	}
	return celPredicate{expr: expr, values: c.values, useLinks: c.useLinks}, nil
}

func (c *celCompiler) bind(v any) string {
	c.values = append(c.values, normalizeCELValue(v))
	return fmt.Sprintf("v[%d]", len(c.values)-1)
}

func (c *celCompiler) group(items []types.WhereItem, op string) (string, error) {
	if len(items) == 0 {
		return "true", nil
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		p, err := c.item(it)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

func (c *celCompiler) item(it types.WhereItem) (string, error) {
	switch it.Type {
	case types.WhereAnd:
		return c.group(it.Items, " && ")
	case types.WhereOr:
		return c.group(it.Items, " || ")
	}
	if !types.IsAttributeName(it.Attribute) {
		return "", httperr.NewBadRequest(fmt.Sprintf("where: invalid attribute %q", it.Attribute))
	}
	has := fmt.Sprintf("%q in r", it.Attribute)
	ref := fmt.Sprintf("r[%q]", it.Attribute)
	present := "(" + has + " && " + ref + " != null)"

	switch it.Type {
	case types.WhereEquals:
		return fmt.Sprintf("(%s && %s == %s)", has, ref, c.bind(it.Value)), nil
	case types.WhereNotEquals:
		return fmt.Sprintf("(%s && %s != %s)", present, ref, c.bind(it.Value)), nil
	case types.WhereIn:
		return fmt.Sprintf("(%s && %s in %s)", has, ref, c.bind(it.Value)), nil
	case types.WhereNotIn:
		return fmt.Sprintf("!(%s && %s in %s)", has, ref, c.bind(it.Value)), nil
	case types.WhereIsNull:
		return fmt.Sprintf("!%s", present), nil
	case types.WhereIsNotNull:
		return present, nil
	case types.WhereIsTrue:
		return fmt.Sprintf("(%s && %s == true)", has, ref), nil
	case types.WhereIsFalse:
		return fmt.Sprintf("(!%s || %s == false)", present, ref), nil
	case types.WhereGreaterThan:
		return fmt.Sprintf("(%s && %s > %s)", present, ref, c.bind(it.Value)), nil
	case types.WhereLessThan:
		return fmt.Sprintf("(%s && %s < %s)", present, ref, c.bind(it.Value)), nil
	case types.WhereGreaterThanOrEquals:
		return fmt.Sprintf("(%s && %s >= %s)", present, ref, c.bind(it.Value)), nil
	case types.WhereLessThanOrEquals:
		return fmt.Sprintf("(%s && %s <= %s)", present, ref, c.bind(it.Value)), nil
	case types.WhereBetween:
		bounds, ok := types.ListValue(it.Value)
		if !ok || len(bounds) != 2 {
			return "", httperr.NewBadRequest("where: between requires [from, to]")
		}
		return fmt.Sprintf("(%s && %s >= %s && %s <= %s)", present, ref, c.bind(bounds[0]), ref, c.bind(bounds[1])), nil
	case types.WhereLike, types.WhereNotLike:
		pattern, ok := it.Value.(string)
		if !ok {
			return "", httperr.NewBadRequest("where: like requires a string")
		}
		expr := fmt.Sprintf("(%s && string(%s).matches(%s))", present, ref, c.bind(likeToRegexp(pattern)))
		if it.Type == types.WhereNotLike {
			return "!" + expr, nil
		}
		return expr, nil
	case types.WhereLinkedWith, types.WhereNotLinkedWith:
		ids, err := types.LinkedIDs(it.Value)
		if err != nil {
			return "", err
		}
		c.useLinks = true
		expr := fmt.Sprintf("(%q in l && l[%q].exists(x, x in %s))", it.Attribute, it.Attribute, c.bind(ids))
		if it.Type == types.WhereNotLinkedWith {
			return "!" + expr, nil
		}
		return expr, nil
	default:
		return "", httperr.NewBadRequest(fmt.Sprintf("where: unknown type %q", it.Type))
	}
}

// likeToRegexp translates a SQL LIKE pattern into an anchored,
// case-insensitive RE2 expression.
func likeToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// normalizeCELValue widens numbers to double so that values decoded from JSON
// and values built in Go compare equal.
func normalizeCELValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, x := range t {
			out = append(out, normalizeCELValue(x))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalizeCELValue(x)
		}
		return out
	default:
		return v
	}
}

type celProgramCache struct {
	env      *cel.Env
	programs *lru.Cache[string, cel.Program]
}

func newCELProgramCache(size int) (*celProgramCache, error) {
	env, err := newRecordCELEnv()
	if err != nil {
		return nil, err
	}
	programs, err := lru.New[string, cel.Program](size)
	if err != nil {
		return nil, err
	}
	return &celProgramCache{env: env, programs: programs}, nil
}

func (c *celProgramCache) loadOrCompile(expr string) (cel.Program, error) {
	if p, ok := c.programs.Get(expr); ok {
		return p, nil
	}
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("predicate output type mismatch")
	}
	p, err := c.env.Program(ast)
	if err != nil {
		return nil, err
	}
	c.programs.Add(expr, p)
	return p, nil
}

// matches evaluates p against one record. Evaluation errors, such as ordering
// a string against a number, count as no match.
func (p celPredicate) matches(program cel.Program, record map[string]any, links map[string][]string) bool {
	if links == nil {
		links = map[string][]string{}
	}
	out, _, err := program.Eval(map[string]any{
		"r": record,
		"v": p.values,
		"l": links,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
