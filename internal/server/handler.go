package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacksonlee411/recordhub/internal/config"
	"github.com/jacksonlee411/recordhub/internal/routing"
	"github.com/jacksonlee411/recordhub/modules/record/domain/metadata"
	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/infrastructure/export"
	"github.com/jacksonlee411/recordhub/modules/record/presentation/controllers"
	"github.com/jacksonlee411/recordhub/modules/record/services"
	"github.com/jacksonlee411/recordhub/pkg/authz"
)

const apiPrefix = "/api/v1"

type HandlerOptions struct {
	Config          *config.Config
	Store           ports.RecordStore
	Pool            *pgxpool.Pool
	TenancyResolver TenancyResolver
	Logger          *slog.Logger
	Registry        *prometheus.Registry
	// Register adds per-entity-type service factories before routes mount.
	Register func(*services.Resolver)
}

func NewHandlerWithOptions(ctx context.Context, opts HandlerOptions) (http.Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("server: missing config")
	}
	if opts.Store == nil {
		return nil, errors.New("server: missing record store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	allowlistPath, err := resolveConfigPath(cfg.GetString(config.KeyRoutingAllowlist, ""))
	if err != nil {
		return nil, err
	}
	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	metadataPath, err := resolveConfigPath(cfg.GetString(config.KeyMetadataPath, ""))
	if err != nil {
		return nil, err
	}
	meta, err := metadata.Load(metadataPath)
	if err != nil {
		return nil, err
	}

	access, err := loadAccess(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	exporter, err := export.NewFileExporter(export.WithExportDirectory(cfg.GetString(config.KeyExportDir, "")))
	if err != nil {
		return nil, err
	}

	tenancyResolver := opts.TenancyResolver
	if tenancyResolver == nil {
		tenancyResolver, err = loadTenancyResolver(cfg, opts.Pool)
		if err != nil {
			return nil, err
		}
	}

	verifier, err := newTokenVerifier(cfg.GetString(config.KeyJWTSecret, ""))
	if err != nil {
		return nil, err
	}

	m := newMetrics(reg)
	resolver := services.NewResolver(services.Deps{
		Store:    opts.Store,
		Metadata: meta,
		Access:   access,
		Exporter: exporter,
		Logger:   logger,
		Observer: m,
	})
	if opts.Register != nil {
		opts.Register(resolver)
	}

	records := controllers.RecordHTTP{
		Controller: controllers.RecordController{
			Services: resolver,
			Access:   access,
			Config:   cfg,
			Logger:   logger,
		},
	}

	router := routing.NewRouter(classifier)
	routes := []struct {
		rc      routing.RouteClass
		methods []string
		path    string
		handler http.HandlerFunc
	}{
		{routing.RouteClassOps, []string{http.MethodGet}, "/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		}},
		{routing.RouteClassOps, []string{http.MethodGet}, "/metrics", m.handler().ServeHTTP},
		{routing.RouteClassPublicAPI, []string{http.MethodGet, http.MethodPost}, apiPrefix + "/{entityType}", records.HandleCollection},
		{routing.RouteClassPublicAPI, []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete}, apiPrefix + "/{entityType}/{id}", records.HandleRecord},
		{routing.RouteClassPublicAPI, []string{http.MethodPut, http.MethodDelete}, apiPrefix + "/{entityType}/{id}/subscription", records.HandleSubscription},
		{routing.RouteClassPublicAPI, []string{http.MethodGet, http.MethodPost, http.MethodDelete}, apiPrefix + "/{entityType}/{id}/{link}", records.HandleLink},
		{routing.RouteClassPublicAPI, []string{routing.MethodAny}, apiPrefix + "/{entityType}/action/{action}", records.HandleAction},
	}
	for _, rt := range routes {
		for _, method := range rt.methods {
			if !router.Allows(method, rt.path) {
				return nil, fmt.Errorf("server: route %s %s missing from allowlist", method, rt.path)
			}
			router.Handle(rt.rc, method, rt.path, rt.handler)
		}
	}

	observed := withObservability(logger, m, router, router)
	return withTenantAndPrincipal(classifier, tenancyResolver, verifier, cfg.GetBool(config.KeyHTTPTrustProxy, false), observed), nil
}

func loadAccess(ctx context.Context, cfg *config.Config, logger *slog.Logger) (recordAccess, error) {
	modelPath, err := resolveConfigPath(cfg.GetString(config.KeyAuthzModel, ""))
	if err != nil {
		return recordAccess{}, err
	}
	policyPath, err := resolveConfigPath(cfg.GetString(config.KeyAuthzPolicy, ""))
	if err != nil {
		return recordAccess{}, err
	}
	settingsPath, err := resolveConfigPath(cfg.GetString(config.KeyAuthzSettings, ""))
	if err != nil {
		return recordAccess{}, err
	}
	mode, err := authz.ParseMode(cfg.GetString(config.KeyAuthzMode, ""), cfg.GetBool(config.KeyAuthzUnsafeDisabled, false))
	if err != nil {
		return recordAccess{}, err
	}
	authorizer, err := authz.NewAuthorizer(modelPath, policyPath, mode)
	if err != nil {
		return recordAccess{}, err
	}
	settings, err := authz.LoadSettingsEvaluator(ctx, settingsPath)
	if err != nil {
		return recordAccess{}, err
	}
	if mode != authz.ModeEnforce {
		logger.Warn("authz not enforced", slog.String("mode", string(mode)))
	}
	return recordAccess{authorizer: authorizer, settings: settings, logger: logger}, nil
}

// loadTenancyResolver prefers the static tenants file and falls back to the
// tenants table when a database is configured.
func loadTenancyResolver(cfg *config.Config, pool *pgxpool.Pool) (TenancyResolver, error) {
	path, err := resolveConfigPath(cfg.GetString(config.KeyTenantsPath, ""))
	if err == nil {
		tenants, err := loadTenants(path)
		if err != nil {
			return nil, err
		}
		return newStaticTenancyResolver(tenants), nil
	}
	if pool != nil {
		return newCachedTenancyResolver(newTenancyDBResolver(pool), tenantCacheSize, tenantCacheTTL), nil
	}
	return nil, errors.New("server: missing tenancy resolver (provide tenants.path or a database)")
}

// resolveConfigPath finds a relative path from the working directory or one
// of its parents, so binaries and tests can run from any package directory.
func resolveConfigPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("server: empty config path")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	candidate := path
	for range 8 {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		candidate = filepath.Join("..", candidate)
	}
	return "", fmt.Errorf("server: %s not found", path)
}
