package server

import (
	"context"
	"log/slog"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/authz"
)

type permitter interface {
	Permit(role string, tenantID string, entityType string, action string) (bool, error)
}

type settingsReader interface {
	Setting(ctx context.Context, role string, tenantID string, name string) (string, error)
}

// recordAccess answers record permission questions for the actor in ctx.
type recordAccess struct {
	authorizer permitter
	settings   settingsReader
	logger     *slog.Logger
}

func (a recordAccess) Check(ctx context.Context, entityType string, action string) bool {
	actor, ok := types.ActorFromContext(ctx)
	if !ok {
		return false
	}
	allowed, err := a.authorizer.Permit(actor.Role, actor.TenantID, entityType, action)
	if err != nil {
		a.logger.ErrorContext(ctx, "authz check failed",
			slog.String("entity_type", entityType),
			slog.String("action", action),
			slog.Any("err", err),
		)
		return false
	}
	return allowed
}

func (a recordAccess) Get(ctx context.Context, setting string) string {
	actor, ok := types.ActorFromContext(ctx)
	if !ok || a.settings == nil {
		return ""
	}
	v, err := a.settings.Setting(ctx, actor.Role, actor.TenantID, setting)
	if err != nil {
		a.logger.ErrorContext(ctx, "authz setting failed", slog.String("setting", setting), slog.Any("err", err))
		return ""
	}
	return v
}

func (a recordAccess) IsAdmin(ctx context.Context) bool {
	actor, ok := types.ActorFromContext(ctx)
	return ok && actor.Role == authz.RoleAdmin
}
