package persistence

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/jacksonlee411/recordhub/modules/record/domain/fieldtypes"
	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const defaultPredicateCacheSize = 256

type followKey struct {
	entityType string
	id         string
	userID     string
}

type memoryState struct {
	records   map[string]map[string]map[string]any
	relations map[ports.Relation]struct{}
	follows   map[followKey]struct{}
}

func newMemoryState() *memoryState {
	return &memoryState{
		records:   make(map[string]map[string]map[string]any),
		relations: make(map[ports.Relation]struct{}),
		follows:   make(map[followKey]struct{}),
	}
}

func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	for et, byID := range s.records {
		m := make(map[string]map[string]any, len(byID))
		for id, values := range byID {
			m[id] = maps.Clone(values)
		}
		out.records[et] = m
	}
	maps.Copy(out.relations, s.relations)
	maps.Copy(out.follows, s.follows)
	return out
}

// MemoryStore keeps records per tenant in process memory. It backs
// development and tests; state is lost on restart.
//
// Transactions of one tenant are serialized; tenants do not block each other.
// A transaction reads the committed state directly and copies it only on its
// first write, so read-only transactions never clone.
type MemoryStore struct {
	mu       sync.Mutex
	tenants  map[string]*tenantSlot
	programs *celProgramCache
}

type tenantSlot struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore() (*MemoryStore, error) {
	programs, err := newCELProgramCache(defaultPredicateCacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{tenants: make(map[string]*tenantSlot), programs: programs}, nil
}

func (s *MemoryStore) slot(tenantID string) *tenantSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.tenants[tenantID]
	if !ok {
		sl = &tenantSlot{state: newMemoryState()}
		s.tenants[tenantID] = sl
	}
	return sl
}

func (s *MemoryStore) WithTx(ctx context.Context, tenantID string, fn func(tx ports.RecordTx) error) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return httperr.NewBadRequest("tenant is required")
	}
	sl := s.slot(tenantID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	tx := &memoryTx{base: sl.state, programs: s.programs}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx.work != nil {
		sl.state = tx.work
	}
	return nil
}

type memoryTx struct {
	base     *memoryState
	work     *memoryState
	programs *celProgramCache
}

func (t *memoryTx) read() *memoryState {
	if t.work != nil {
		return t.work
	}
	return t.base
}

func (t *memoryTx) write() *memoryState {
	if t.work == nil {
		t.work = t.base.clone()
	}
	return t.work
}

func (t *memoryTx) Get(_ context.Context, entityType string, id string) (*types.Entity, error) {
	st := t.read()
	values, ok := st.records[entityType][id]
	if !ok {
		return nil, httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
	}
	return types.NewEntity(entityType, values), nil
}

func (t *memoryTx) Insert(_ context.Context, e *types.Entity) error {
	st := t.write()
	id := e.ID()
	if id == "" {
		return httperr.NewBadRequest("id is required")
	}
	byID := st.records[e.EntityType]
	if byID == nil {
		byID = make(map[string]map[string]any)
		st.records[e.EntityType] = byID
	}
	if _, exists := byID[id]; exists {
		return httperr.NewConflict(fmt.Sprintf("%s %s already exists", e.EntityType, id))
	}
	byID[id] = e.ValueMap()
	return nil
}

func (t *memoryTx) Update(_ context.Context, e *types.Entity) error {
	st := t.write()
	byID := st.records[e.EntityType]
	if _, ok := byID[e.ID()]; !ok {
		return httperr.NewNotFound(fmt.Sprintf("%s %s not found", e.EntityType, e.ID()))
	}
	byID[e.ID()] = e.ValueMap()
	return nil
}

func (t *memoryTx) Delete(_ context.Context, entityType string, id string) error {
	st := t.write()
	byID := st.records[entityType]
	if _, ok := byID[id]; !ok {
		return httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
	}
	delete(byID, id)
	for rel := range st.relations {
		if (rel.EntityType == entityType && rel.EntityID == id) || (rel.ForeignType == entityType && rel.ForeignID == id) {
			delete(st.relations, rel)
		}
	}
	for k := range st.follows {
		if k.entityType == entityType && k.id == id {
			delete(st.follows, k)
		}
	}
	return nil
}

func (t *memoryTx) Find(_ context.Context, entityType string, q ports.StoreQuery) ([]*types.Entity, int, error) {
	st := t.read()
	pred, err := compileCELPredicate(q.Where)
	if err != nil {
		return nil, 0, err
	}
	program, err := t.programs.loadOrCompile(pred.expr)
	if err != nil {
		return nil, 0, httperr.NewBadRequest("where: " + err.Error())
	}

	var matched []*types.Entity
	for id, values := range st.records[entityType] {
		if q.FollowedBy != "" {
			if _, ok := st.follows[followKey{entityType: entityType, id: id, userID: q.FollowedBy}]; !ok {
				continue
			}
		}
		var links map[string][]string
		if pred.useLinks {
			links = t.linksOf(entityType, id)
		}
		record, _ := normalizeCELValue(values).(map[string]any)
		if !pred.matches(program, record, links) {
			continue
		}
		matched = append(matched, types.NewEntity(entityType, values))
	}

	sortEntities(matched, q.SortBy, q.Asc)
	total := len(matched)
	return paginate(matched, q.Offset, q.Limit), total, nil
}

func (t *memoryTx) linksOf(entityType string, id string) map[string][]string {
	st := t.read()
	out := make(map[string][]string)
	for rel := range st.relations {
		if rel.EntityType == entityType && rel.EntityID == id {
			out[rel.Link] = append(out[rel.Link], rel.ForeignID)
		}
	}
	return out
}

func (t *memoryTx) Relate(_ context.Context, rel ports.Relation) (bool, error) {
	st := t.write()
	if _, ok := st.records[rel.EntityType][rel.EntityID]; !ok {
		return false, httperr.NewNotFound(fmt.Sprintf("%s %s not found", rel.EntityType, rel.EntityID))
	}
	if _, ok := st.records[rel.ForeignType][rel.ForeignID]; !ok {
		return false, httperr.NewNotFound(fmt.Sprintf("%s %s not found", rel.ForeignType, rel.ForeignID))
	}
	if _, exists := st.relations[rel]; exists {
		return false, nil
	}
	st.relations[rel] = struct{}{}
	return true, nil
}

func (t *memoryTx) Unrelate(_ context.Context, rel ports.Relation) (bool, error) {
	st := t.write()
	if _, exists := st.relations[rel]; !exists {
		return false, nil
	}
	delete(st.relations, rel)
	return true, nil
}

func (t *memoryTx) RelatedIDs(_ context.Context, entityType string, id string, link string) ([]string, error) {
	st := t.read()
	var out []string
	for rel := range st.relations {
		if rel.EntityType == entityType && rel.EntityID == id && rel.Link == link {
			out = append(out, rel.ForeignID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *memoryTx) RepointRelations(_ context.Context, entityType string, fromID string, toID string) error {
	st := t.write()
	for rel := range st.relations {
		moved := rel
		if rel.EntityType == entityType && rel.EntityID == fromID {
			moved.EntityID = toID
		}
		if rel.ForeignType == entityType && rel.ForeignID == fromID {
			moved.ForeignID = toID
		}
		if moved == rel {
			continue
		}
		delete(st.relations, rel)
		if moved.EntityType == moved.ForeignType && moved.EntityID == moved.ForeignID {
			continue
		}
		st.relations[moved] = struct{}{}
	}
	return nil
}

func (t *memoryTx) Follow(_ context.Context, entityType string, id string, userID string) (bool, error) {
	st := t.write()
	if _, ok := st.records[entityType][id]; !ok {
		return false, httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
	}
	k := followKey{entityType: entityType, id: id, userID: userID}
	st.follows[k] = struct{}{}
	return true, nil
}

func (t *memoryTx) Unfollow(_ context.Context, entityType string, id string, userID string) (bool, error) {
	st := t.write()
	if _, ok := st.records[entityType][id]; !ok {
		return false, httperr.NewNotFound(fmt.Sprintf("%s %s not found", entityType, id))
	}
	delete(st.follows, followKey{entityType: entityType, id: id, userID: userID})
	return true, nil
}

func (t *memoryTx) RepointFollows(_ context.Context, entityType string, fromID string, toID string) error {
	st := t.write()
	for k := range st.follows {
		if k.entityType != entityType || k.id != fromID {
			continue
		}
		delete(st.follows, k)
		k.id = toID
		st.follows[k] = struct{}{}
	}
	return nil
}

func sortEntities(list []*types.Entity, sortBy string, asc bool) {
	if sortBy == "" {
		sortBy = types.AttributeID
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, _ := list[i].Get(sortBy)
		b, _ := list[j].Get(sortBy)
		c := compareValues(a, b)
		if c == 0 {
			c = strings.Compare(list[i].ID(), list[j].ID())
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

// compareValues orders nil first, then numbers, then everything else by its
// string form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, okA := fieldtypes.ToFloat(a)
	fb, okB := fieldtypes.ToFloat(b)
	switch {
	case okA && okB:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func paginate(list []*types.Entity, offset int, limit int) []*types.Entity {
	if offset >= len(list) {
		return []*types.Entity{}
	}
	if offset > 0 {
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
