package routing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func repoAllowlist(t *testing.T) Allowlist {
	t.Helper()

	a, err := LoadAllowlist(repoRoot(t) + "/config/routing/allowlist.yaml")
	if err != nil {
		t.Fatalf("load allowlist: %v", err)
	}
	return a
}

func TestGateA_NoNonVersionedAPI(t *testing.T) {
	a := repoAllowlist(t)
	for _, ep := range a.Entrypoints {
		for _, r := range ep.Routes {
			if strings.HasPrefix(r.Path, "/api/") && !strings.HasPrefix(r.Path, "/api/v1/") {
				t.Fatalf("non-versioned api route: %s", r.Path)
			}
		}
	}
}

func TestGateB_AllowlistLoadsAndEntrypointsPresent(t *testing.T) {
	_, err := NewClassifier(Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{}}, "server")
	if err == nil {
		t.Fatal("expected error")
	}

	c, err := NewClassifier(repoAllowlist(t), "server")
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/api/v1/{entityType}"},
		{http.MethodPost, "/api/v1/{entityType}"},
		{http.MethodPatch, "/api/v1/{entityType}/{id}"},
		{http.MethodPut, "/api/v1/{entityType}/{id}/subscription"},
		{http.MethodPost, "/api/v1/{entityType}/{id}/{link}"},
		{http.MethodPost, "/api/v1/{entityType}/action/{action}"},
	} {
		if !c.Allows(tc.method, tc.path) {
			t.Fatalf("%s %s not allowlisted", tc.method, tc.path)
		}
	}
}

func TestGateC_JSONOnlyErrors(t *testing.T) {
	t.Parallel()

	a := Allowlist{
		Version: 1,
		Entrypoints: map[string]Entrypoint{
			"server": {Routes: []Route{{Path: "/health", Methods: []string{"GET"}, RouteClass: "ops"}}},
		},
	}
	c, err := NewClassifier(a, "server")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRouter(c)

	for _, path := range []string{"/api/v1/unknown/a/b/c", "/unknown", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("path=%s status=%d", path, rec.Code)
		}
		if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
			t.Fatalf("path=%s content-type=%q", path, rec.Header().Get("Content-Type"))
		}
	}
}
