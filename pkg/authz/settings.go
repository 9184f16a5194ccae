package authz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
)

// SettingsQuery is the rego document that yields role-level settings as an
// object of string values.
const SettingsQuery = "data.recordhub.settings"

// SettingsEvaluator answers role-level settings such as exportPermission
// from a rego policy.
type SettingsEvaluator struct {
	query rego.PreparedEvalQuery
}

func NewSettingsEvaluator(ctx context.Context, module string) (*SettingsEvaluator, error) {
	if strings.TrimSpace(module) == "" {
		return nil, errors.New("authz: settings policy empty")
	}
	pq, err := rego.New(
		rego.Query(SettingsQuery),
		rego.Module("settings.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz: prepare settings: %w", err)
	}
	return &SettingsEvaluator{query: pq}, nil
}

func LoadSettingsEvaluator(ctx context.Context, path string) (*SettingsEvaluator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewSettingsEvaluator(ctx, string(b))
}

// Setting returns the named setting for role in tenant, or "" when the
// policy does not define it.
func (s *SettingsEvaluator) Setting(ctx context.Context, role string, tenantID string, name string) (string, error) {
	rs, err := s.query.Eval(ctx, rego.EvalInput(map[string]any{
		"role":   strings.TrimSpace(strings.ToLower(role)),
		"tenant": DomainFromTenantID(tenantID),
	}))
	if err != nil {
		return "", err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", nil
	}
	settings, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return "", fmt.Errorf("authz: settings is %T, want object", rs[0].Expressions[0].Value)
	}
	v, ok := settings[name].(string)
	if !ok {
		return "", nil
	}
	return v, nil
}
