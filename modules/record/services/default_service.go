package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jacksonlee411/recordhub/modules/record/domain/metadata"
	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const (
	AttributeCreatedAt   = "createdAt"
	AttributeModifiedAt  = "modifiedAt"
	AttributeCreatedByID = "createdById"

	uniqueLookupLimit    = 20
	duplicateLookupLimit = 50
)

var systemAttributes = []string{types.AttributeID, AttributeCreatedAt, AttributeModifiedAt, AttributeCreatedByID}

// DefaultService serves any entity type declared in metadata. Every write
// runs in one store transaction scoped to the caller's tenant.
type DefaultService struct {
	deps    Deps
	def     metadata.EntityDef
	allowed map[string]struct{}
}

var _ ports.RecordService = (*DefaultService)(nil)

func NewDefaultService(entityType string, deps Deps) (*DefaultService, error) {
	deps = deps.withDefaults()
	if deps.Store == nil {
		return nil, errors.New("services: store is required")
	}
	if deps.Metadata == nil {
		return nil, errors.New("services: metadata is required")
	}
	def, ok := deps.Metadata.Entity(entityType)
	if !ok {
		return nil, httperr.NewNotFound(fmt.Sprintf("entity type %q not found", entityType))
	}
	allowed := make(map[string]struct{})
	for name, f := range def.Fields {
		for _, a := range deps.Fields.For(f.Type).Attributes(name) {
			allowed[a] = struct{}{}
		}
	}
	return &DefaultService{deps: deps, def: def, allowed: allowed}, nil
}

func (s *DefaultService) EntityType() string { return s.def.Name }

func (s *DefaultService) ReadEntity(ctx context.Context, id string) (*types.Entity, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	var out *types.Entity
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		e, err := tx.Get(ctx, s.def.Name, id)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DefaultService) CreateEntity(ctx context.Context, data map[string]any) (*types.Entity, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	values := s.sanitize(data)
	if err := s.checkRequired(values, true); err != nil {
		return nil, err
	}
	id, err := s.deps.NewID()
	if err != nil {
		return nil, fmt.Errorf("new id: %w", err)
	}
	now := s.timestamp()
	e := types.NewEntity(s.def.Name, values)
	e.Set(types.AttributeID, id)
	e.Set(AttributeCreatedAt, now)
	e.Set(AttributeModifiedAt, now)
	e.Set(AttributeCreatedByID, actor.UserID)

	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		if err := s.checkUnique(ctx, tx, e.Values, nil); err != nil {
			return err
		}
		return tx.Insert(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.InfoContext(ctx, "record created", slog.String("entity_type", s.def.Name), slog.String("id", id))
	return e, nil
}

func (s *DefaultService) UpdateEntity(ctx context.Context, id string, data map[string]any) (*types.Entity, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	values := s.sanitize(data)
	if err := s.checkRequired(values, false); err != nil {
		return nil, err
	}
	var out *types.Entity
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		e, err := tx.Get(ctx, s.def.Name, id)
		if err != nil {
			return err
		}
		e.SetMultiple(values)
		e.Set(AttributeModifiedAt, s.timestamp())
		if err := s.checkUnique(ctx, tx, e.Values, []string{id}); err != nil {
			return err
		}
		if err := tx.Update(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DefaultService) DeleteEntity(ctx context.Context, id string) (bool, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return false, err
	}
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		return tx.Delete(ctx, s.def.Name, id)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DefaultService) FindEntities(ctx context.Context, q types.ListQuery) (types.FindResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.FindResult{}, err
	}
	sq, err := s.scope(actor).storeQuery(q)
	if err != nil {
		return types.FindResult{}, err
	}
	var res types.FindResult
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		list, total, err := tx.Find(ctx, s.def.Name, sq)
		if err != nil {
			return err
		}
		res = types.FindResult{Total: total, Collection: project(list, q.Select)}
		return nil
	})
	if err != nil {
		return types.FindResult{}, err
	}
	return res, nil
}

// GetListKanban lists records grouped by the kanban status field. Each group
// is paged with the query's offset and maxSize; the top-level list is empty.
func (s *DefaultService) GetListKanban(ctx context.Context, q types.ListQuery) (types.FindResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.FindResult{}, err
	}
	if s.def.Kanban == nil {
		return types.FindResult{}, httperr.NewBadRequest(fmt.Sprintf("%s has no kanban view", s.def.Name))
	}
	statusField := s.def.Kanban.StatusField
	field, _ := s.def.Field(statusField)
	sq, err := s.scope(actor).storeQuery(q)
	if err != nil {
		return types.FindResult{}, err
	}

	var res types.FindResult
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		page, total, err := tx.Find(ctx, s.def.Name, sq)
		if err != nil {
			return err
		}
		groups := make([]types.KanbanGroup, 0, len(field.Options))
		for _, option := range field.Options {
			gq := sq
			gq.Where = sq.Where.And(types.Where{types.Equals(statusField, option)})
			list, n, err := tx.Find(ctx, s.def.Name, gq)
			if err != nil {
				return err
			}
			groups = append(groups, types.KanbanGroup{
				Name:  option,
				Total: n,
				List:  types.ValueMapList(project(list, q.Select)),
			})
		}
		res = types.FindResult{
			Total:          total,
			Collection:     project(page, q.Select),
			AdditionalData: types.KanbanData{GroupList: groups},
		}
		return nil
	})
	if err != nil {
		return types.FindResult{}, err
	}
	return res, nil
}

func (s *DefaultService) FindLinkedEntities(ctx context.Context, id string, link string, q types.ListQuery) (types.FindResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.FindResult{}, err
	}
	ld, ok := s.def.Link(link)
	if !ok {
		return types.FindResult{}, httperr.NewNotFound(fmt.Sprintf("link %q not found on %s", link, s.def.Name))
	}
	if !s.can(ctx, s.def.Name, ports.ActionRead) || !s.can(ctx, ld.Entity, ports.ActionRead) {
		return types.FindResult{}, httperr.NewForbidden("")
	}
	foreign, ok := s.deps.Metadata.Entity(ld.Entity)
	if !ok {
		return types.FindResult{}, httperr.NewNotFound(fmt.Sprintf("entity type %q not found", ld.Entity))
	}
	sq, err := queryScope{def: foreign, actor: actor}.storeQuery(q)
	if err != nil {
		return types.FindResult{}, err
	}

	var res types.FindResult
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		if _, err := tx.Get(ctx, s.def.Name, id); err != nil {
			return err
		}
		ids, err := tx.RelatedIDs(ctx, s.def.Name, id, link)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			res = types.FindResult{Collection: []*types.Entity{}}
			return nil
		}
		lq := sq
		lq.Where = types.Where{types.IDsIn(ids)}.And(sq.Where)
		list, total, err := tx.Find(ctx, foreign.Name, lq)
		if err != nil {
			return err
		}
		res = types.FindResult{Total: total, Collection: project(list, q.Select)}
		return nil
	})
	if err != nil {
		return types.FindResult{}, err
	}
	return res, nil
}

// Export resolves the target inside the export transaction and hands the rows
// to the exporter. The exporter call runs synchronously.
func (s *DefaultService) Export(ctx context.Context, params types.ExportParams) (string, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return "", err
	}
	if s.deps.Exporter == nil {
		return "", httperr.NewError("export is not configured")
	}
	columns := s.exportColumns(params)
	var rows []map[string]any
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		list, err := s.scope(actor).resolveTarget(ctx, tx, params.Target)
		if err != nil {
			return err
		}
		rows = types.ValueMapList(list)
		return nil
	})
	if err != nil {
		return "", err
	}
	id, err := s.deps.Exporter.Export(ctx, s.def.Name, params.Format, columns, rows)
	if err != nil {
		return "", err
	}
	s.deps.Logger.InfoContext(ctx, "records exported",
		slog.String("entity_type", s.def.Name),
		slog.String("export_id", id),
		slog.Int("rows", len(rows)),
	)
	return id, nil
}

func (s *DefaultService) exportColumns(params types.ExportParams) []string {
	var columns []string
	switch {
	case len(params.AttributeList) > 0:
		columns = slices.Clone(params.AttributeList)
	case len(params.FieldList) > 0:
		for _, name := range params.FieldList {
			f, ok := s.def.Field(name)
			if !ok {
				continue
			}
			columns = append(columns, s.deps.Fields.For(f.Type).Attributes(name)...)
		}
	default:
		for _, name := range s.def.FieldNames() {
			f, _ := s.def.Field(name)
			columns = append(columns, s.deps.Fields.For(f.Type).Attributes(name)...)
		}
	}
	columns = slices.DeleteFunc(columns, func(c string) bool { return c == types.AttributeID })
	return append([]string{types.AttributeID}, columns...)
}

// MassUpdate applies attributes to every target record. Records that fail
// the uniqueness check are skipped.
func (s *DefaultService) MassUpdate(ctx context.Context, attributes map[string]any, target types.MassTarget) ([]string, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if target.IsEmpty() {
		return nil, httperr.NewBadRequest("ids or where is required")
	}
	values := s.sanitize(attributes)
	if len(values) == 0 {
		return nil, httperr.NewBadRequest("no updatable attributes")
	}
	if err := s.checkRequired(values, false); err != nil {
		return nil, err
	}
	updated := []string{}
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		list, err := s.scope(actor).resolveTarget(ctx, tx, target)
		if err != nil {
			return err
		}
		now := s.timestamp()
		for _, e := range list {
			e.SetMultiple(values)
			e.Set(AttributeModifiedAt, now)
			if err := s.checkUnique(ctx, tx, e.Values, []string{e.ID()}); err != nil {
				if httperr.IsConflict(err) {
					s.deps.Logger.WarnContext(ctx, "mass update skipped record",
						slog.String("entity_type", s.def.Name),
						slog.String("id", e.ID()),
						slog.Any("err", err),
					)
					continue
				}
				return err
			}
			if err := tx.Update(ctx, e); err != nil {
				return err
			}
			updated = append(updated, e.ID())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe("massUpdate", len(updated))
	return updated, nil
}

func (s *DefaultService) MassRemove(ctx context.Context, target types.MassTarget) (types.MassResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.MassResult{}, err
	}
	if target.IsEmpty() {
		return types.MassResult{}, httperr.NewBadRequest("ids or where is required")
	}
	res := types.MassResult{IDs: []string{}}
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		list, err := s.scope(actor).resolveTarget(ctx, tx, target)
		if err != nil {
			return err
		}
		for _, e := range list {
			if err := tx.Delete(ctx, s.def.Name, e.ID()); err != nil {
				if httperr.IsNotFound(err) {
					continue
				}
				return err
			}
			res.IDs = append(res.IDs, e.ID())
		}
		res.Count = len(res.IDs)
		return nil
	})
	if err != nil {
		return types.MassResult{}, err
	}
	s.observe("massDelete", res.Count)
	return res, nil
}

func (s *DefaultService) LinkEntity(ctx context.Context, id string, link string, foreignID string) (bool, error) {
	actor, ld, err := s.linkScope(ctx, link)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		ok, err = s.relate(ctx, tx, id, ld, foreignID)
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// LinkEntityMass relates id to every record of the link's foreign type that
// currently matches where, narrowed by selectData. The whole set is related
// in one transaction.
func (s *DefaultService) LinkEntityMass(ctx context.Context, id string, link string, where types.Where, selectData *types.SelectData) (types.MassResult, error) {
	actor, ld, err := s.linkScope(ctx, link)
	if err != nil {
		return types.MassResult{}, err
	}
	if where == nil {
		return types.MassResult{}, httperr.NewBadRequest("where is required")
	}
	foreign, ok := s.deps.Metadata.Entity(ld.Entity)
	if !ok {
		return types.MassResult{}, httperr.NewNotFound(fmt.Sprintf("entity type %q not found", ld.Entity))
	}
	target := types.MassTarget{Where: where, SelectData: selectData, ByWhere: true}

	res := types.MassResult{IDs: []string{}}
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		if _, err := tx.Get(ctx, s.def.Name, id); err != nil {
			return err
		}
		list, err := queryScope{def: foreign, actor: actor}.resolveTarget(ctx, tx, target)
		if err != nil {
			return err
		}
		for _, e := range list {
			created, err := s.relate(ctx, tx, id, ld, e.ID())
			if err != nil {
				return err
			}
			if created {
				res.IDs = append(res.IDs, e.ID())
			}
		}
		res.Count = len(res.IDs)
		return nil
	})
	if err != nil {
		return types.MassResult{}, err
	}
	s.observe("massRelate", res.Count)
	return res, nil
}

func (s *DefaultService) UnlinkEntity(ctx context.Context, id string, link string, foreignID string) (bool, error) {
	actor, ld, err := s.linkScope(ctx, link)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		rel := ports.Relation{EntityType: s.def.Name, EntityID: id, Link: ld.Name, ForeignType: ld.Entity, ForeignID: foreignID}
		ok, err = tx.Unrelate(ctx, rel)
		if err != nil || !ok || ld.Foreign == "" {
			return err
		}
		_, err = tx.Unrelate(ctx, reverse(rel, ld.Foreign))
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *DefaultService) linkScope(ctx context.Context, link string) (types.Actor, metadata.LinkDef, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.Actor{}, metadata.LinkDef{}, err
	}
	if !s.can(ctx, s.def.Name, ports.ActionEdit) {
		return types.Actor{}, metadata.LinkDef{}, httperr.NewForbidden("")
	}
	ld, ok := s.def.Link(link)
	if !ok {
		return types.Actor{}, metadata.LinkDef{}, httperr.NewNotFound(fmt.Sprintf("link %q not found on %s", link, s.def.Name))
	}
	return actor, ld, nil
}

func (s *DefaultService) relate(ctx context.Context, tx ports.RecordTx, id string, ld metadata.LinkDef, foreignID string) (bool, error) {
	rel := ports.Relation{EntityType: s.def.Name, EntityID: id, Link: ld.Name, ForeignType: ld.Entity, ForeignID: foreignID}
	ok, err := tx.Relate(ctx, rel)
	if err != nil || ld.Foreign == "" {
		return ok, err
	}
	if _, err := tx.Relate(ctx, reverse(rel, ld.Foreign)); err != nil {
		return false, err
	}
	return ok, nil
}

func reverse(rel ports.Relation, foreignLink string) ports.Relation {
	return ports.Relation{
		EntityType:  rel.ForeignType,
		EntityID:    rel.ForeignID,
		Link:        foreignLink,
		ForeignType: rel.EntityType,
		ForeignID:   rel.EntityID,
	}
}

func (s *DefaultService) Follow(ctx context.Context, id string) (bool, error) {
	return s.setFollow(ctx, id, true)
}

func (s *DefaultService) Unfollow(ctx context.Context, id string) (bool, error) {
	return s.setFollow(ctx, id, false)
}

func (s *DefaultService) setFollow(ctx context.Context, id string, follow bool) (bool, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		if follow {
			ok, err = tx.Follow(ctx, s.def.Name, id, actor.UserID)
		} else {
			ok, err = tx.Unfollow(ctx, s.def.Name, id, actor.UserID)
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// MassFollow follows every target record. An empty target follows nothing.
func (s *DefaultService) MassFollow(ctx context.Context, target types.MassTarget) (types.MassResult, error) {
	return s.massFollow(ctx, target, true)
}

func (s *DefaultService) MassUnfollow(ctx context.Context, target types.MassTarget) (types.MassResult, error) {
	return s.massFollow(ctx, target, false)
}

func (s *DefaultService) massFollow(ctx context.Context, target types.MassTarget, follow bool) (types.MassResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.MassResult{}, err
	}
	res := types.MassResult{IDs: []string{}}
	if target.IsEmpty() {
		return res, nil
	}
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		list, err := s.scope(actor).resolveTarget(ctx, tx, target)
		if err != nil {
			return err
		}
		for _, e := range list {
			var ok bool
			if follow {
				ok, err = tx.Follow(ctx, s.def.Name, e.ID(), actor.UserID)
			} else {
				ok, err = tx.Unfollow(ctx, s.def.Name, e.ID(), actor.UserID)
			}
			if err != nil {
				return err
			}
			if ok {
				res.IDs = append(res.IDs, e.ID())
			}
		}
		res.Count = len(res.IDs)
		return nil
	})
	if err != nil {
		return types.MassResult{}, err
	}
	op := "massUnfollow"
	if follow {
		op = "massFollow"
	}
	s.observe(op, res.Count)
	return res, nil
}

// Merge folds the source records into the target in one transaction. Any
// failure rolls back the whole merge, so no source is deleted unless every
// source was moved.
func (s *DefaultService) Merge(ctx context.Context, req types.MergeRequest) (bool, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return false, err
	}
	sources := uniqueIDs(req.SourceIDs)
	if req.TargetID == "" || len(sources) == 0 {
		return false, httperr.NewBadRequest("targetId and sourceIds are required")
	}
	if slices.Contains(sources, req.TargetID) {
		return false, httperr.NewBadRequest("target cannot be merged into itself")
	}
	values := s.sanitize(req.Attributes)

	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		target, err := tx.Get(ctx, s.def.Name, req.TargetID)
		if err != nil {
			return err
		}
		for _, id := range sources {
			if _, err := tx.Get(ctx, s.def.Name, id); err != nil {
				return err
			}
		}
		target.SetMultiple(values)
		target.Set(AttributeModifiedAt, s.timestamp())
		for _, id := range sources {
			if err := tx.RepointRelations(ctx, s.def.Name, id, req.TargetID); err != nil {
				return fmt.Errorf("merge %s: repoint relations: %w", id, err)
			}
			if err := tx.RepointFollows(ctx, s.def.Name, id, req.TargetID); err != nil {
				return fmt.Errorf("merge %s: repoint follows: %w", id, err)
			}
			if err := tx.Delete(ctx, s.def.Name, id); err != nil {
				return fmt.Errorf("merge %s: delete source: %w", id, err)
			}
		}
		if err := s.checkUnique(ctx, tx, target.Values, []string{req.TargetID}); err != nil {
			return err
		}
		return tx.Update(ctx, target)
	})
	if err != nil {
		s.deps.Logger.WarnContext(ctx, "merge rolled back",
			slog.String("entity_type", s.def.Name),
			slog.String("target_id", req.TargetID),
			slog.Any("err", err),
		)
		return false, err
	}
	s.deps.Logger.InfoContext(ctx, "records merged",
		slog.String("entity_type", s.def.Name),
		slog.String("target_id", req.TargetID),
		slog.Int("sources", len(sources)),
	)
	return true, nil
}

// GetDuplicateAttributes reports, per duplicate-check field, the other
// records holding the same value as record id.
func (s *DefaultService) GetDuplicateAttributes(ctx context.Context, id string) (types.DuplicateResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return types.DuplicateResult{}, err
	}
	res := types.DuplicateResult{ID: id, Duplicates: map[string][]string{}}
	err = s.deps.Store.WithTx(ctx, actor.TenantID, func(tx ports.RecordTx) error {
		e, err := tx.Get(ctx, s.def.Name, id)
		if err != nil {
			return err
		}
		for _, name := range s.def.DuplicateFields() {
			ids, err := s.collisions(ctx, tx, name, e.Values, []string{id}, duplicateLookupLimit)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				res.Duplicates[name] = ids
			}
		}
		attrs := e.ValueMap()
		delete(attrs, types.AttributeID)
		res.Attributes = attrs
		return nil
	})
	if err != nil {
		return types.DuplicateResult{}, err
	}
	return res, nil
}

// collisions returns the ids of records other than exclude whose value of
// field equals the one in values, as decided by the field's strategy.
func (s *DefaultService) collisions(ctx context.Context, tx ports.RecordTx, field string, values map[string]any, exclude []string, limit int) ([]string, error) {
	fd, ok := s.def.Field(field)
	if !ok {
		return nil, nil
	}
	strategy := s.deps.Fields.For(fd.Type)
	frag, ok := strategy.UniqueFragment(field, values)
	if !ok {
		return nil, nil
	}
	where := types.Where{frag.Where}
	if len(exclude) > 0 {
		notIn := types.IDsIn(exclude)
		notIn.Type = types.WhereNotIn
		where = append(where, notIn)
	}
	list, _, err := tx.Find(ctx, s.def.Name, ports.StoreQuery{Where: where, Limit: limit, Asc: true})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range list {
		if strategy.Equals(field, c, values) {
			ids = append(ids, c.ID())
		}
	}
	return ids, nil
}

func (s *DefaultService) checkUnique(ctx context.Context, tx ports.RecordTx, values map[string]any, exclude []string) error {
	for _, name := range s.def.UniqueFields() {
		ids, err := s.collisions(ctx, tx, name, values, exclude, uniqueLookupLimit)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			return httperr.NewConflict(fmt.Sprintf("%s: %s is not unique", s.def.Name, name))
		}
	}
	return nil
}

// checkRequired rejects blank required fields. On create every required
// field must be present; otherwise only submitted ones are checked.
func (s *DefaultService) checkRequired(values map[string]any, create bool) error {
	for _, name := range s.def.FieldNames() {
		f, _ := s.def.Field(name)
		if !f.Required {
			continue
		}
		attr := s.deps.Fields.For(f.Type).Attributes(name)[0]
		v, present := values[attr]
		if !present && !create {
			continue
		}
		if blank(v) {
			return httperr.NewBadRequest(fmt.Sprintf("%s: %s is required", s.def.Name, name))
		}
	}
	return nil
}

// sanitize keeps the field attributes of the entity type and drops system
// and unknown attributes.
func (s *DefaultService) sanitize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if slices.Contains(systemAttributes, k) {
			continue
		}
		if _, ok := s.allowed[k]; !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *DefaultService) actor(ctx context.Context) (types.Actor, error) {
	actor, ok := types.ActorFromContext(ctx)
	if !ok || actor.TenantID == "" {
		return types.Actor{}, httperr.NewForbidden("caller is not identified")
	}
	return actor, nil
}

func (s *DefaultService) scope(actor types.Actor) queryScope {
	return queryScope{def: s.def, actor: actor}
}

func (s *DefaultService) can(ctx context.Context, entityType string, action string) bool {
	if s.deps.Access == nil {
		return true
	}
	return s.deps.Access.Check(ctx, entityType, action)
}

func (s *DefaultService) observe(operation string, n int) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveMass(s.def.Name, operation, n)
	}
}

func (s *DefaultService) timestamp() string {
	return s.deps.Now().UTC().Format(time.RFC3339)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	str, ok := v.(string)
	return ok && strings.TrimSpace(str) == ""
}
