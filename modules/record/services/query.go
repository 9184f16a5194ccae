package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jacksonlee411/recordhub/modules/record/domain/metadata"
	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const (
	BoolFilterOnlyMy   = "onlyMy"
	BoolFilterFollowed = "followed"

	attributeAssignedUserID = "assignedUserId"
)

// queryScope folds named filters, saved selections and text search into a
// store query for one entity type on behalf of one caller.
type queryScope struct {
	def   metadata.EntityDef
	actor types.Actor
}

func (sc queryScope) storeQuery(q types.ListQuery) (ports.StoreQuery, error) {
	names := make([]string, 0, 1+len(q.FilterList))
	if q.PrimaryFilter != "" {
		names = append(names, q.PrimaryFilter)
	}
	names = append(names, q.FilterList...)
	where, followed, err := sc.filters(q.Where, names, q.BoolFilterList, q.TextFilter)
	if err != nil {
		return ports.StoreQuery{}, err
	}
	if q.SortBy != "" && !types.IsAttributeName(q.SortBy) {
		return ports.StoreQuery{}, httperr.NewBadRequest(fmt.Sprintf("invalid sortBy %q", q.SortBy))
	}
	sq := ports.StoreQuery{
		Where:  where,
		Offset: q.OffsetValue(),
		Limit:  q.MaxSize,
		SortBy: q.SortBy,
		Asc:    q.Asc,
	}
	if followed {
		sq.FollowedBy = sc.actor.UserID
	}
	return sq, nil
}

// filters combines base with every named filter, bool filter and the text
// term. All parts are combined with AND.
func (sc queryScope) filters(base types.Where, named []string, boolFilters []string, text string) (types.Where, bool, error) {
	where := base.And(nil)
	followed := false
	for _, name := range slices.Concat(named, boolFilters) {
		if strings.TrimSpace(name) == "" {
			continue
		}
		w, f, err := sc.namedFilter(name)
		if err != nil {
			return nil, false, err
		}
		where = where.And(w)
		followed = followed || f
	}
	if item, ok := sc.textFilter(text); ok {
		where = append(where, item)
	}
	return where, followed, nil
}

func (sc queryScope) namedFilter(name string) (types.Where, bool, error) {
	switch name {
	case BoolFilterOnlyMy:
		return types.Where{types.Equals(attributeAssignedUserID, sc.actor.UserID)}, false, nil
	case BoolFilterFollowed:
		return nil, true, nil
	}
	if w, ok := sc.def.Filter(name); ok {
		return w, false, nil
	}
	return nil, false, httperr.NewBadRequest(fmt.Sprintf("unknown filter %q for %s", name, sc.def.Name))
}

func (sc queryScope) textFilter(term string) (types.WhereItem, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return types.WhereItem{}, false
	}
	pattern := strings.ReplaceAll(term, "*", "%")
	if !strings.Contains(pattern, "%") {
		pattern = "%" + pattern + "%"
	}
	fields := sc.def.TextFields()
	items := make([]types.WhereItem, 0, len(fields))
	for _, f := range fields {
		items = append(items, types.Like(f, pattern))
	}
	return types.Or(items...), true
}

func (sc queryScope) selectData(sd *types.SelectData) (types.Where, bool, error) {
	if sd == nil {
		return nil, false, nil
	}
	var named []string
	if sd.PrimaryFilter != "" {
		named = append(named, sd.PrimaryFilter)
	}
	return sc.filters(sd.Where, named, sd.BoolFilterList, sd.TextFilter)
}

// resolveTarget loads the records a mass operation applies to. Predicate
// targets are evaluated inside tx, so the set reflects the data at execution.
func (sc queryScope) resolveTarget(ctx context.Context, tx ports.RecordTx, target types.MassTarget) ([]*types.Entity, error) {
	if target.UsesPredicate() {
		where, followed, err := sc.filters(target.Where, nil, nil, "")
		if err != nil {
			return nil, err
		}
		narrow, narrowFollowed, err := sc.selectData(target.SelectData)
		if err != nil {
			return nil, err
		}
		sq := ports.StoreQuery{Where: where.And(narrow), Asc: true}
		if followed || narrowFollowed {
			sq.FollowedBy = sc.actor.UserID
		}
		list, _, err := tx.Find(ctx, sc.def.Name, sq)
		return list, err
	}

	ids := uniqueIDs(target.IDs)
	if len(ids) == 0 {
		return nil, nil
	}
	list, _, err := tx.Find(ctx, sc.def.Name, ports.StoreQuery{Where: types.Where{types.IDsIn(ids)}, Asc: true})
	return list, err
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func project(list []*types.Entity, attrs []string) []*types.Entity {
	if len(attrs) == 0 {
		return list
	}
	out := make([]*types.Entity, 0, len(list))
	for _, e := range list {
		values := map[string]any{types.AttributeID: e.ID()}
		for _, a := range attrs {
			if v, ok := e.Get(a); ok {
				values[a] = v
			}
		}
		out = append(out, &types.Entity{EntityType: e.EntityType, Values: values})
	}
	return out
}
