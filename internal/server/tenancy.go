package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
)

// Tenant is the owner of every record a request touches. It is resolved from
// the request hostname.
type Tenant struct {
	ID     string `yaml:"id"`
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type TenancyResolver interface {
	ResolveTenant(ctx context.Context, hostname string) (Tenant, bool, error)
}

type staticTenancyResolver struct {
	tenants map[string]Tenant
}

func newStaticTenancyResolver(tenants map[string]Tenant) TenancyResolver {
	m := make(map[string]Tenant, len(tenants))
	for k, v := range tenants {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &staticTenancyResolver{tenants: m}
}

func (r *staticTenancyResolver) ResolveTenant(_ context.Context, hostname string) (Tenant, bool, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return Tenant{}, false, nil
	}
	t, ok := r.tenants[hostname]
	return t, ok, nil
}

type tenancyDBResolver struct {
	q queryRower
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func newTenancyDBResolver(q queryRower) TenancyResolver {
	return &tenancyDBResolver{q: q}
}

func (r *tenancyDBResolver) ResolveTenant(ctx context.Context, hostname string) (Tenant, bool, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return Tenant{}, false, nil
	}

	var tenantID string
	var tenantName string

	err := r.q.QueryRow(ctx, `
SELECT t.id, t.name
FROM tenant_domains d
JOIN tenants t ON t.id = d.tenant_id
WHERE d.hostname = $1
  AND t.is_active = true
LIMIT 1
`, hostname).Scan(&tenantID, &tenantName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, false, nil
		}
		return Tenant{}, false, err
	}
	return Tenant{ID: tenantID, Domain: hostname, Name: tenantName}, true, nil
}

const (
	tenantCacheSize = 1024
	tenantCacheTTL  = time.Minute
)

type tenantLookup struct {
	tenant Tenant
	found  bool
}

// cachedTenancyResolver remembers lookups, misses included, for a short TTL so
// the tenants table is not queried on every request. Errors are not cached.
type cachedTenancyResolver struct {
	next  TenancyResolver
	cache *expirable.LRU[string, tenantLookup]
}

func newCachedTenancyResolver(next TenancyResolver, size int, ttl time.Duration) TenancyResolver {
	return &cachedTenancyResolver{
		next:  next,
		cache: expirable.NewLRU[string, tenantLookup](size, nil, ttl),
	}
}

func (r *cachedTenancyResolver) ResolveTenant(ctx context.Context, hostname string) (Tenant, bool, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hit, ok := r.cache.Get(hostname); ok {
		return hit.tenant, hit.found, nil
	}
	t, found, err := r.next.ResolveTenant(ctx, hostname)
	if err != nil {
		return Tenant{}, false, err
	}
	r.cache.Add(hostname, tenantLookup{tenant: t, found: found})
	return t, found, nil
}
