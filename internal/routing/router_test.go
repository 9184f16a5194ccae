package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	a := Allowlist{
		Version: 1,
		Entrypoints: map[string]Entrypoint{
			"server": {Routes: []Route{
				{Path: "/health", Methods: []string{"GET"}, RouteClass: "ops"},
				{Path: "/api/v1/{entityType}/{id}", Methods: []string{"GET"}, RouteClass: "public_api"},
			}},
		},
	}
	c, err := NewClassifier(a, "server")
	if err != nil {
		t.Fatal(err)
	}
	return NewRouter(c)
}

func echoParams(names ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := map[string]string{"pattern": r.Pattern}
		for _, n := range names {
			out[n] = r.PathValue(n)
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}

func TestRouter_PanicBecomes500JSON(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	r.Handle(RouteClassPublicAPI, http.MethodGet, "/api/v1/panic", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("err=%v", err)
	}
	if env.Code != "internal_error" || env.Meta.Path != "/api/v1/panic" || env.Meta.Method != http.MethodGet {
		t.Fatalf("env=%+v", env)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	r.Handle(RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestRouter_PathParamsAndPrecedence(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	r.Handle(RouteClassPublicAPI, http.MethodGet, "/api/v1/{entityType}/{id}/{link}", echoParams("entityType", "id", "link"))
	r.Handle(RouteClassPublicAPI, http.MethodPut, "/api/v1/{entityType}/{id}/subscription", echoParams("entityType", "id"))
	r.Handle(RouteClassPublicAPI, MethodAny, "/api/v1/{entityType}/action/{action}", echoParams("entityType", "action"))

	cases := []struct {
		method string
		path   string
		want   map[string]string
	}{
		{
			method: http.MethodGet,
			path:   "/api/v1/Account/a1/contacts",
			want:   map[string]string{"pattern": "/api/v1/{entityType}/{id}/{link}", "entityType": "Account", "id": "a1", "link": "contacts"},
		},
		{
			method: http.MethodPut,
			path:   "/api/v1/Account/a1/subscription",
			want:   map[string]string{"pattern": "/api/v1/{entityType}/{id}/subscription", "entityType": "Account", "id": "a1"},
		},
		{
			method: http.MethodPost,
			path:   "/api/v1/Account/action/massUpdate",
			want:   map[string]string{"pattern": "/api/v1/{entityType}/action/{action}", "entityType": "Account", "action": "massUpdate"},
		},
		{
			method: http.MethodDelete,
			path:   "/api/v1/Account/action/subscription",
			want:   map[string]string{"pattern": "/api/v1/{entityType}/action/{action}", "entityType": "Account", "action": "subscription"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			var got map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("err=%v", err)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("%s=%q want %q (got=%v)", k, got[k], v, got)
				}
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/Account/a1/subscription", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRouter_RouteClassOf(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	r.Handle(RouteClassPublicAPI, http.MethodGet, "/api/v1/{entityType}/{id}", echoParams())
	r.Handle(RouteClassOps, http.MethodGet, "/health", echoParams())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/Account/a1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got := r.RouteClassOf(req); got != RouteClassPublicAPI {
		t.Fatalf("rc=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got := r.RouteClassOf(req); got != RouteClassOps {
		t.Fatalf("rc=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got := r.RouteClassOf(req); got != RouteClassUnknown {
		t.Fatalf("rc=%q", got)
	}
	if !r.Allows(http.MethodGet, "/api/v1/{entityType}/{id}") || r.Allows(http.MethodPost, "/api/v1/{entityType}/{id}") {
		t.Fatal("unexpected allowlist answer")
	}
}

func TestTraceIDFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "00-abc-def-01", want: ""},
		{in: "00-00000000000000000000000000000000-0123456789abcdef-01", want: ""},
		{in: "00-0123456789ABCDEF0123456789ABCDEF-0123456789abcdef-01", want: "0123456789abcdef0123456789abcdef"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("traceparent", tc.in)
		if got := TraceIDFromRequest(req); got != tc.want {
			t.Fatalf("in=%q got=%q want=%q", tc.in, got, tc.want)
		}
	}
}
