package routing

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// MethodAny registers a handler for every method on a route.
const MethodAny = "*"

type Router struct {
	classifier *Classifier
	routes     map[string]map[string]routeEntry
	patterns   []patternEntry
	classes    map[string]RouteClass
}

type routeEntry struct {
	handler http.Handler
}

type patternEntry struct {
	pattern PathPattern
	methods map[string]routeEntry
}

func NewRouter(classifier *Classifier) *Router {
	return &Router{
		classifier: classifier,
		routes:     make(map[string]map[string]routeEntry),
		classes:    make(map[string]RouteClass),
	}
}

// Handle registers h for method on path. Paths may contain {name}
// segments; handlers read them with http.Request.PathValue.
func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	r.classes[path] = rc
	entry := routeEntry{
		handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.ErrorContext(req.Context(), "handler panic",
						slog.String("path", req.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)
					WriteError(w, req, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			h.ServeHTTP(w, req)
		}),
	}

	if p, ok := parsePathPattern(path); ok {
		for i := range r.patterns {
			if r.patterns[i].pattern.raw == path {
				r.patterns[i].methods[method] = entry
				return
			}
		}
		r.patterns = append(r.patterns, patternEntry{pattern: p, methods: map[string]routeEntry{method: entry}})
		return
	}
	if r.routes[path] == nil {
		r.routes[path] = make(map[string]routeEntry)
	}
	r.routes[path][method] = entry
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	methods, template, params, ok := r.match(req.URL.Path)
	if !ok {
		WriteError(w, req, http.StatusNotFound, "not_found", "not found")
		return
	}
	entry, ok := methods[req.Method]
	if !ok {
		entry, ok = methods[MethodAny]
	}
	if !ok {
		WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	req.Pattern = template
	for name, value := range params {
		req.SetPathValue(name, value)
	}
	entry.handler.ServeHTTP(w, req)
}

func (r *Router) match(path string) (map[string]routeEntry, string, map[string]string, bool) {
	if methods, ok := r.routes[path]; ok {
		return methods, path, nil, true
	}
	var (
		best   *patternEntry
		params map[string]string
	)
	for i := range r.patterns {
		p := &r.patterns[i]
		bound, ok := p.pattern.Bind(path)
		if !ok {
			continue
		}
		if best == nil || p.pattern.moreSpecific(best.pattern) {
			best, params = p, bound
		}
	}
	if best == nil {
		return nil, "", nil, false
	}
	return best.methods, best.pattern.raw, params, true
}

// RouteClassOf returns the class a request's route was registered with.
// It is meaningful after ServeHTTP has matched the request.
func (r *Router) RouteClassOf(req *http.Request) RouteClass {
	if rc, ok := r.classes[req.Pattern]; ok && req.Pattern != "" {
		return rc
	}
	return r.classifier.Classify(req.URL.Path)
}

// Allows reports whether the allowlist declares method on path.
func (r *Router) Allows(method string, path string) bool {
	return r.classifier.Allows(method, path)
}
