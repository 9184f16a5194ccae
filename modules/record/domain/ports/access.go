package ports

import "context"

const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionRead   = "read"
	ActionDelete = "delete"
	ActionStream = "stream"
)

const SettingExportPermission = "exportPermission"

// AccessChecker answers permission questions for the caller carried in ctx.
// A check that cannot be evaluated is a denial.
type AccessChecker interface {
	Check(ctx context.Context, entityType string, action string) bool
	Get(ctx context.Context, setting string) string
	IsAdmin(ctx context.Context) bool
}

type ConfigReader interface {
	GetInt(key string, def int) int
	GetBool(key string, def bool) bool
}
