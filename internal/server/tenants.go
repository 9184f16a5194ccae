package server

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type tenantsFile struct {
	Version int      `yaml:"version"`
	Tenants []Tenant `yaml:"tenants"`
}

// loadTenants reads the static host-to-tenant table keyed by lower-cased
// hostname. A hostname may be bound to one tenant only.
func loadTenants(path string) (map[string]Tenant, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tf tenantsFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("tenants: %w", err)
	}
	if tf.Version != 1 {
		return nil, fmt.Errorf("tenants: unsupported version %d", tf.Version)
	}
	if len(tf.Tenants) == 0 {
		return nil, fmt.Errorf("tenants: empty")
	}

	m := make(map[string]Tenant, len(tf.Tenants))
	for i, t := range tf.Tenants {
		t.ID = strings.TrimSpace(t.ID)
		t.Domain = normalizeHostname(t.Domain)
		if t.ID == "" || t.Domain == "" {
			return nil, fmt.Errorf("tenants: entry %d needs id and domain", i)
		}
		if prev, ok := m[t.Domain]; ok {
			return nil, fmt.Errorf("tenants: domain %s bound to %s and %s", t.Domain, prev.ID, t.ID)
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		m[t.Domain] = t
	}
	return m, nil
}
