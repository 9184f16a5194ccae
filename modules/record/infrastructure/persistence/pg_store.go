package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore keeps records as JSONB rows. Every transaction sets
// app.current_tenant so row level security applies.
type PGStore struct {
	pool pgBeginner
}

func NewPGStore(pool pgBeginner) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) WithTx(ctx context.Context, tenantID string, fn func(tx ports.RecordTx) error) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return httperr.NewBadRequest("tenant is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return err
	}
	if err := fn(&pgRecordTx{tx: tx, tenantID: tenantID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgRecordTx struct {
	tx       pgx.Tx
	tenantID string
}

func (t *pgRecordTx) Get(ctx context.Context, entityType string, id string) (*types.Entity, error) {
	var raw []byte
	err := t.tx.QueryRow(ctx, `
SELECT data
FROM records
WHERE tenant_id = $1 AND entity_type = $2 AND id = $3
`, t.tenantID, entityType, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
		}
		return nil, err
	}
	return decodeRecord(entityType, raw)
}

func (t *pgRecordTx) Insert(ctx context.Context, e *types.Entity) error {
	if e.ID() == "" {
		return httperr.NewBadRequest("id is required")
	}
	data, err := json.Marshal(e.Values)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO records (tenant_id, entity_type, id, data)
VALUES ($1, $2, $3, $4::text::jsonb)
`, t.tenantID, e.EntityType, e.ID(), string(data))
	if pgErrorCode(err) == "23505" {
		return httperr.NewConflict(fmt.Sprintf("%s %s already exists", e.EntityType, e.ID()))
	}
	return err
}

func (t *pgRecordTx) Update(ctx context.Context, e *types.Entity) error {
	data, err := json.Marshal(e.Values)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE records
SET data = $4::text::jsonb, updated_at = now()
WHERE tenant_id = $1 AND entity_type = $2 AND id = $3
`, t.tenantID, e.EntityType, e.ID(), string(data))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewNotFound(fmt.Sprintf("%s %s not found", e.EntityType, e.ID()))
	}
	return nil
}

func (t *pgRecordTx) Delete(ctx context.Context, entityType string, id string) error {
	tag, err := t.tx.Exec(ctx, `
DELETE FROM records
WHERE tenant_id = $1 AND entity_type = $2 AND id = $3
`, t.tenantID, entityType, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
	}
	if _, err := t.tx.Exec(ctx, `
DELETE FROM record_relations
WHERE tenant_id = $1
  AND ((entity_type = $2 AND entity_id = $3) OR (foreign_type = $2 AND foreign_id = $3))
`, t.tenantID, entityType, id); err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
DELETE FROM record_follows
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
`, t.tenantID, entityType, id)
	return err
}

func (t *pgRecordTx) Find(ctx context.Context, entityType string, q ports.StoreQuery) ([]*types.Entity, int, error) {
	w := newSQLWhere(t.tenantID, entityType)
	pred, err := w.group(q.Where, " AND ")
	if err != nil {
		return nil, 0, err
	}
	cond := "r.tenant_id = $1 AND r.entity_type = $2 AND " + pred
	if q.FollowedBy != "" {
		cond += " AND EXISTS (SELECT 1 FROM record_follows f WHERE f.tenant_id = r.tenant_id" +
			" AND f.entity_type = r.entity_type AND f.entity_id = r.id AND f.user_id = " + w.bind(q.FollowedBy) + ")"
	}
	orderBy, err := orderByClause(q.SortBy, q.Asc)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := t.tx.QueryRow(ctx, "SELECT count(*) FROM records r WHERE "+cond, w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := "SELECT r.data FROM records r WHERE " + cond + " ORDER BY " + orderBy
	args := w.args
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += " LIMIT $" + strconv.Itoa(len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*types.Entity, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, err
		}
		e, err := decodeRecord(entityType, raw)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (t *pgRecordTx) exists(ctx context.Context, entityType string, id string) error {
	var ok bool
	if err := t.tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM records WHERE tenant_id = $1 AND entity_type = $2 AND id = $3)
`, t.tenantID, entityType, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
	}
	return nil
}

func (t *pgRecordTx) Relate(ctx context.Context, rel ports.Relation) (bool, error) {
	if err := t.exists(ctx, rel.EntityType, rel.EntityID); err != nil {
		return false, err
	}
	if err := t.exists(ctx, rel.ForeignType, rel.ForeignID); err != nil {
		return false, err
	}
	tag, err := t.tx.Exec(ctx, `
INSERT INTO record_relations (tenant_id, entity_type, entity_id, link, foreign_type, foreign_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING
`, t.tenantID, rel.EntityType, rel.EntityID, rel.Link, rel.ForeignType, rel.ForeignID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgRecordTx) Unrelate(ctx context.Context, rel ports.Relation) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
DELETE FROM record_relations
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
  AND link = $4 AND foreign_type = $5 AND foreign_id = $6
`, t.tenantID, rel.EntityType, rel.EntityID, rel.Link, rel.ForeignType, rel.ForeignID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgRecordTx) RelatedIDs(ctx context.Context, entityType string, id string, link string) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
SELECT foreign_id
FROM record_relations
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND link = $4
ORDER BY foreign_id
`, t.tenantID, entityType, id, link)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var foreignID string
		if err := rows.Scan(&foreignID); err != nil {
			return nil, err
		}
		out = append(out, foreignID)
	}
	return out, rows.Err()
}

func (t *pgRecordTx) RepointRelations(ctx context.Context, entityType string, fromID string, toID string) error {
	stmts := []string{
		`INSERT INTO record_relations (tenant_id, entity_type, entity_id, link, foreign_type, foreign_id)
SELECT tenant_id, entity_type, $4, link, foreign_type, foreign_id
FROM record_relations
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
  AND NOT (foreign_type = $2 AND foreign_id = $4)
ON CONFLICT DO NOTHING`,
		`DELETE FROM record_relations WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`,
		`INSERT INTO record_relations (tenant_id, entity_type, entity_id, link, foreign_type, foreign_id)
SELECT tenant_id, entity_type, entity_id, link, foreign_type, $4
FROM record_relations
WHERE tenant_id = $1 AND foreign_type = $2 AND foreign_id = $3
  AND NOT (entity_type = $2 AND entity_id = $4)
ON CONFLICT DO NOTHING`,
		`DELETE FROM record_relations WHERE tenant_id = $1 AND foreign_type = $2 AND foreign_id = $3`,
	}
	for _, sql := range stmts {
		if _, err := t.tx.Exec(ctx, sql, t.tenantID, entityType, fromID, toID); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgRecordTx) Follow(ctx context.Context, entityType string, id string, userID string) (bool, error) {
	if err := t.exists(ctx, entityType, id); err != nil {
		return false, err
	}
	if _, err := t.tx.Exec(ctx, `
INSERT INTO record_follows (tenant_id, entity_type, entity_id, user_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`, t.tenantID, entityType, id, userID); err != nil {
		return false, err
	}
	return true, nil
}

func (t *pgRecordTx) Unfollow(ctx context.Context, entityType string, id string, userID string) (bool, error) {
	if err := t.exists(ctx, entityType, id); err != nil {
		return false, err
	}
	if _, err := t.tx.Exec(ctx, `
DELETE FROM record_follows
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND user_id = $4
`, t.tenantID, entityType, id, userID); err != nil {
		return false, err
	}
	return true, nil
}

func (t *pgRecordTx) RepointFollows(ctx context.Context, entityType string, fromID string, toID string) error {
	if _, err := t.tx.Exec(ctx, `
INSERT INTO record_follows (tenant_id, entity_type, entity_id, user_id)
SELECT tenant_id, entity_type, $4, user_id
FROM record_follows
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
ON CONFLICT DO NOTHING
`, t.tenantID, entityType, fromID, toID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
DELETE FROM record_follows
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
`, t.tenantID, entityType, fromID)
	return err
}

func decodeRecord(entityType string, raw []byte) (*types.Entity, error) {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", entityType, err)
	}
	return &types.Entity{EntityType: entityType, Values: values}, nil
}

func pgErrorCode(err error) string {
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}
