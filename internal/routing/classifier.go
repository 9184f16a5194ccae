package routing

import (
	"errors"
	"slices"
	"strings"
)

type RouteClass string

const (
	RouteClassPublicAPI RouteClass = "public_api"
	RouteClassOps       RouteClass = "ops"
	RouteClassDevOnly   RouteClass = "dev_only"
	RouteClassUnknown   RouteClass = "unknown"
)

type Classifier struct {
	entrypoint        string
	allowExact        map[string]allowedRoute
	allowPathPatterns []pathPatternRoute
}

type allowedRoute struct {
	rc      RouteClass
	methods []string
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint")
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint routes empty")
	}

	exact := make(map[string]allowedRoute, len(ep.Routes))
	var patterns []pathPatternRoute
	for _, r := range ep.Routes {
		if r.Path == "" || r.RouteClass == "" {
			return nil, errors.New("allowlist: invalid route")
		}
		allowed := allowedRoute{rc: RouteClass(r.RouteClass), methods: normalizeMethods(r.Methods)}
		if p, ok := parsePathPattern(r.Path); ok {
			patterns = append(patterns, pathPatternRoute{pattern: p, allowed: allowed})
			continue
		}
		exact[r.Path] = allowed
	}
	return &Classifier{entrypoint: entrypoint, allowExact: exact, allowPathPatterns: patterns}, nil
}

func (c *Classifier) Classify(path string) RouteClass {
	if a, ok := c.lookup(path); ok {
		return a.rc
	}

	switch {
	case hasPrefixSegment(path, "/api/v1"):
		return RouteClassPublicAPI
	case path == "/health" || path == "/metrics":
		return RouteClassOps
	case hasPrefixSegment(path, "/_dev"):
		return RouteClassDevOnly
	default:
		return RouteClassUnknown
	}
}

// Allows reports whether the allowlist declares method on route. A route
// declared without methods allows every method.
func (c *Classifier) Allows(method string, route string) bool {
	a, ok := c.allowExact[route]
	if !ok {
		for _, p := range c.allowPathPatterns {
			if p.pattern.raw == route {
				a, ok = p.allowed, true
				break
			}
		}
	}
	if !ok {
		return false
	}
	return len(a.methods) == 0 || slices.Contains(a.methods, strings.ToUpper(method)) || slices.Contains(a.methods, MethodAny)
}

func (c *Classifier) lookup(path string) (allowedRoute, bool) {
	if a, ok := c.allowExact[path]; ok {
		return a, true
	}
	var (
		best  *pathPatternRoute
		found bool
	)
	for i := range c.allowPathPatterns {
		p := &c.allowPathPatterns[i]
		if !p.pattern.Match(path) {
			continue
		}
		if !found || p.pattern.moreSpecific(best.pattern) {
			best, found = p, true
		}
	}
	if !found {
		return allowedRoute{}, false
	}
	return best.allowed, true
}

func hasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func normalizeMethods(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			out = append(out, m)
		}
	}
	return out
}

type pathPatternRoute struct {
	pattern PathPattern
	allowed allowedRoute
}
