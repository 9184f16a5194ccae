package ports

import (
	"context"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
)

// RecordService serves one entity type. Implementations are resolved per
// entity type name.
type RecordService interface {
	EntityType() string

	ReadEntity(ctx context.Context, id string) (*types.Entity, error)
	CreateEntity(ctx context.Context, data map[string]any) (*types.Entity, error)
	UpdateEntity(ctx context.Context, id string, data map[string]any) (*types.Entity, error)
	DeleteEntity(ctx context.Context, id string) (bool, error)

	FindEntities(ctx context.Context, q types.ListQuery) (types.FindResult, error)
	GetListKanban(ctx context.Context, q types.ListQuery) (types.FindResult, error)
	FindLinkedEntities(ctx context.Context, id string, link string, q types.ListQuery) (types.FindResult, error)

	Export(ctx context.Context, params types.ExportParams) (string, error)
	MassUpdate(ctx context.Context, attributes map[string]any, target types.MassTarget) ([]string, error)
	MassRemove(ctx context.Context, target types.MassTarget) (types.MassResult, error)

	LinkEntity(ctx context.Context, id string, link string, foreignID string) (bool, error)
	LinkEntityMass(ctx context.Context, id string, link string, where types.Where, selectData *types.SelectData) (types.MassResult, error)
	UnlinkEntity(ctx context.Context, id string, link string, foreignID string) (bool, error)

	Follow(ctx context.Context, id string) (bool, error)
	Unfollow(ctx context.Context, id string) (bool, error)
	MassFollow(ctx context.Context, target types.MassTarget) (types.MassResult, error)
	MassUnfollow(ctx context.Context, target types.MassTarget) (types.MassResult, error)

	Merge(ctx context.Context, req types.MergeRequest) (bool, error)
	GetDuplicateAttributes(ctx context.Context, id string) (types.DuplicateResult, error)
}

// ServiceResolver returns the service bound to entityType.
type ServiceResolver interface {
	Resolve(entityType string) (RecordService, error)
}
