package routing

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Allowlist is the declared route surface per entrypoint. Routes the server
// mounts must appear here with every method they accept.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	MethodAny:          true,
}

func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, err
	}
	if a.Version != 1 {
		return Allowlist{}, fmt.Errorf("allowlist: unsupported version %d", a.Version)
	}
	if len(a.Entrypoints) == 0 {
		return Allowlist{}, fmt.Errorf("allowlist: missing entrypoints")
	}
	for name, ep := range a.Entrypoints {
		if err := ep.validate(); err != nil {
			return Allowlist{}, fmt.Errorf("allowlist: entrypoint %s: %w", name, err)
		}
	}
	return a, nil
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	return ParseAllowlistYAML(b)
}

func (ep Entrypoint) validate() error {
	seen := make(map[string]bool, len(ep.Routes))
	for _, r := range ep.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route %q must start with /", r.Path)
		}
		if seen[r.Path] {
			return fmt.Errorf("route %s declared twice", r.Path)
		}
		seen[r.Path] = true

		switch RouteClass(r.RouteClass) {
		case RouteClassPublicAPI, RouteClassOps, RouteClassDevOnly:
		default:
			return fmt.Errorf("route %s: unknown route_class %q", r.Path, r.RouteClass)
		}
		for _, m := range r.Methods {
			if !knownMethods[strings.ToUpper(strings.TrimSpace(m))] {
				return fmt.Errorf("route %s: unknown method %q", r.Path, m)
			}
		}
	}
	return nil
}
