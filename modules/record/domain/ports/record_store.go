package ports

import (
	"context"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
)

// StoreQuery is a fully resolved lookup: named filters and text search have
// already been folded into Where.
type StoreQuery struct {
	Where      types.Where
	Offset     int
	Limit      int
	SortBy     string
	Asc        bool
	FollowedBy string
}

// Relation is one directed link row. Links with a foreign name are stored in
// both directions.
type Relation struct {
	EntityType  string
	EntityID    string
	Link        string
	ForeignType string
	ForeignID   string
}

type RecordStore interface {
	// WithTx runs fn in one transaction scoped to tenantID. A non-nil error
	// from fn rolls back every change made through tx.
	WithTx(ctx context.Context, tenantID string, fn func(tx RecordTx) error) error
}

type RecordTx interface {
	Get(ctx context.Context, entityType string, id string) (*types.Entity, error)
	Insert(ctx context.Context, e *types.Entity) error
	Update(ctx context.Context, e *types.Entity) error
	Delete(ctx context.Context, entityType string, id string) error
	Find(ctx context.Context, entityType string, q StoreQuery) ([]*types.Entity, int, error)

	Relate(ctx context.Context, rel Relation) (bool, error)
	Unrelate(ctx context.Context, rel Relation) (bool, error)
	RelatedIDs(ctx context.Context, entityType string, id string, link string) ([]string, error)
	// RepointRelations moves every relation touching fromID onto toID,
	// dropping rows that would duplicate an existing one.
	RepointRelations(ctx context.Context, entityType string, fromID string, toID string) error

	Follow(ctx context.Context, entityType string, id string, userID string) (bool, error)
	Unfollow(ctx context.Context, entityType string, id string, userID string) (bool, error)
	RepointFollows(ctx context.Context, entityType string, fromID string, toID string) error
}

// Exporter writes rows to an export file and returns its id.
type Exporter interface {
	Export(ctx context.Context, entityType string, format string, columns []string, rows []map[string]any) (string, error)
}
