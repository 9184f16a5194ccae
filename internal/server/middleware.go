package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jacksonlee411/recordhub/internal/routing"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
)

// withTenantAndPrincipal resolves the tenant from the host and the caller
// from the bearer token. Ops routes pass through untouched.
func withTenantAndPrincipal(classifier *routing.Classifier, tenants TenancyResolver, verifier *tokenVerifier, trustProxy bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if classifier.Classify(r.URL.Path) == routing.RouteClassOps {
			next.ServeHTTP(w, r)
			return
		}

		t, ok, err := tenants.ResolveTenant(r.Context(), effectiveHost(r, trustProxy))
		if err != nil {
			routing.WriteError(w, r, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !ok {
			routing.WriteError(w, r, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			routing.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		p, err := verifier.Verify(raw)
		if err != nil || p.TenantID != t.ID {
			routing.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}

		ctx := withTenant(r.Context(), t)
		ctx = types.WithActor(ctx, types.Actor{UserID: p.ID, TenantID: t.ID, Role: p.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withObservability records metrics and an access log line per request. It
// must wrap the router directly so the matched route template is visible.
func withObservability(logger *slog.Logger, m *metrics, router *routing.Router, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		m.observeRequest(r.Method, r.Pattern, rec.statusCode, elapsed.Seconds())

		attrs := []any{
			slog.String("method", r.Method),
			slog.String("route", r.Pattern),
			slog.String("route_class", string(router.RouteClassOf(r))),
			slog.Int("status", rec.statusCode),
			slog.Duration("duration", elapsed),
		}
		if t, ok := currentTenant(r.Context()); ok {
			attrs = append(attrs, slog.String("tenant", t.ID))
		}
		logger.InfoContext(r.Context(), "http request", attrs...)
	})
}
