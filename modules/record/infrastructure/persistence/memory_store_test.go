package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

func newSeededMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	err = s.WithTx(context.Background(), "t1", func(tx ports.RecordTx) error {
		seed := []map[string]any{
			{"id": "a1", "name": "Acme", "status": "open", "amount": 10, "active": true},
			{"id": "a2", "name": "Beta", "status": "closed", "amount": 25.5},
			{"id": "a3", "name": "acme labs", "status": "open", "amount": "n/a"},
			{"id": "a4", "name": "Delta", "status": nil, "amount": 40},
		}
		for _, v := range seed {
			if err := tx.Insert(context.Background(), types.NewEntity("Account", v)); err != nil {
				return err
			}
		}
		return tx.Insert(context.Background(), types.NewEntity("Contact", map[string]any{"id": "c1", "name": "Ann"}))
	})
	if err != nil {
		t.Fatalf("seed err=%v", err)
	}
	return s
}

func findIDs(t *testing.T, s *MemoryStore, q ports.StoreQuery) ([]string, int) {
	t.Helper()
	var ids []string
	var total int
	err := s.WithTx(context.Background(), "t1", func(tx ports.RecordTx) error {
		list, n, err := tx.Find(context.Background(), "Account", q)
		if err != nil {
			return err
		}
		total = n
		for _, e := range list {
			ids = append(ids, e.ID())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("find err=%v", err)
	}
	return ids, total
}

func TestMemoryStore_FindPredicates(t *testing.T) {
	s := newSeededMemoryStore(t)

	cases := []struct {
		name  string
		where types.Where
		want  []string
	}{
		{name: "no predicate", where: nil, want: []string{"a1", "a2", "a3", "a4"}},
		{name: "equals", where: types.Where{types.Equals("status", "open")}, want: []string{"a1", "a3"}},
		{name: "equals int matches stored number", where: types.Where{types.Equals("amount", 10)}, want: []string{"a1"}},
		{name: "not equals skips null", where: types.Where{{Type: types.WhereNotEquals, Attribute: "status", Value: "open"}}, want: []string{"a2"}},
		{name: "in", where: types.Where{types.In("status", "closed", "open")}, want: []string{"a1", "a2", "a3"}},
		{name: "not in keeps null", where: types.Where{{Type: types.WhereNotIn, Attribute: "status", Value: []any{"open"}}}, want: []string{"a2", "a4"}},
		{name: "is null", where: types.Where{types.IsNull("status")}, want: []string{"a4"}},
		{name: "is true", where: types.Where{{Type: types.WhereIsTrue, Attribute: "active"}}, want: []string{"a1"}},
		{name: "is false includes missing", where: types.Where{{Type: types.WhereIsFalse, Attribute: "active"}}, want: []string{"a2", "a3", "a4"}},
		{name: "greater than skips non numbers", where: types.Where{{Type: types.WhereGreaterThan, Attribute: "amount", Value: 20}}, want: []string{"a2", "a4"}},
		{name: "between", where: types.Where{{Type: types.WhereBetween, Attribute: "amount", Value: []any{10, 30}}}, want: []string{"a1", "a2"}},
		{name: "like is case insensitive", where: types.Where{types.Like("name", "acme%")}, want: []string{"a1", "a3"}},
		{name: "not like", where: types.Where{{Type: types.WhereNotLike, Attribute: "name", Value: "%a"}}, want: []string{"a1", "a3"}},
		{name: "or group", where: types.Where{types.Or(types.Equals("status", "closed"), types.IsNull("status"))}, want: []string{"a2", "a4"}},
		{name: "ids", where: types.Where{types.IDsIn([]string{"a4", "a2"})}, want: []string{"a2", "a4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, total := findIDs(t, s, ports.StoreQuery{Where: tc.where, Asc: true})
			if total != len(tc.want) || len(got) != len(tc.want) {
				t.Fatalf("got=%v total=%d want=%v", got, total, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got=%v want=%v", got, tc.want)
				}
			}
		})
	}
}

func TestMemoryStore_SortAndPaginate(t *testing.T) {
	s := newSeededMemoryStore(t)
	got, total := findIDs(t, s, ports.StoreQuery{SortBy: "amount", Asc: false, Offset: 1, Limit: 2})
	if total != 4 {
		t.Fatalf("total=%d", total)
	}
	// numbers sort before strings; descending puts the string first.
	if len(got) != 2 || got[0] != "a4" || got[1] != "a2" {
		t.Fatalf("got=%v", got)
	}
	got, _ = findIDs(t, s, ports.StoreQuery{Offset: 10})
	if len(got) != 0 {
		t.Fatalf("got=%v", got)
	}
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := newSeededMemoryStore(t)
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), "t1", func(tx ports.RecordTx) error {
		if err := tx.Delete(context.Background(), "Account", "a1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	err = s.WithTx(context.Background(), "t1", func(tx ports.RecordTx) error {
		_, err := tx.Get(context.Background(), "Account", "a1")
		return err
	})
	if err != nil {
		t.Fatalf("expected a1 to survive rollback: %v", err)
	}
}

func TestMemoryStore_CopyOnFirstWrite(t *testing.T) {
	s := newSeededMemoryStore(t)
	before := s.slot("t1").state

	err := s.WithTx(context.Background(), "t1", func(tx ports.RecordTx) error {
		_, _, err := tx.Find(context.Background(), "Account", ports.StoreQuery{})
		return err
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.slot("t1").state != before {
		t.Fatal("read-only transaction replaced the tenant state")
	}

	err = s.WithTx(context.Background(), "t1", func(tx ports.RecordTx) error {
		if err := tx.Insert(context.Background(), types.NewEntity("Account", map[string]any{"id": "a9", "name": "New"})); err != nil {
			return err
		}
		_, err := tx.Get(context.Background(), "Account", "a9")
		return err
	})
	if err != nil {
		t.Fatalf("read own write err=%v", err)
	}
	if s.slot("t1").state == before {
		t.Fatal("write was not committed")
	}
	if _, ok := before.records["Account"]["a9"]; ok {
		t.Fatal("write leaked into the previous state")
	}
}

func TestMemoryStore_TenantsDoNotBlockEachOther(t *testing.T) {
	s := newSeededMemoryStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(context.Background(), "t1", func(ports.RecordTx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	other := make(chan error, 1)
	go func() {
		other <- s.WithTx(context.Background(), "t2", func(tx ports.RecordTx) error {
			return tx.Insert(context.Background(), types.NewEntity("Account", map[string]any{"id": "b1"}))
		})
	}()
	select {
	case err := <-other:
		if err != nil {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tenant t2 waited on tenant t1")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	s := newSeededMemoryStore(t)
	err := s.WithTx(context.Background(), "t2", func(tx ports.RecordTx) error {
		_, err := tx.Get(context.Background(), "Account", "a1")
		return err
	})
	if !httperr.IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}
	if err := s.WithTx(context.Background(), " ", func(ports.RecordTx) error { return nil }); !httperr.IsBadRequest(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStore_RelationsAndFollows(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()
	rel := ports.Relation{EntityType: "Account", EntityID: "a1", Link: "contacts", ForeignType: "Contact", ForeignID: "c1"}

	err := s.WithTx(ctx, "t1", func(tx ports.RecordTx) error {
		ok, err := tx.Relate(ctx, rel)
		if err != nil || !ok {
			t.Fatalf("relate ok=%v err=%v", ok, err)
		}
		ok, err = tx.Relate(ctx, rel)
		if err != nil || ok {
			t.Fatalf("duplicate relate ok=%v err=%v", ok, err)
		}
		if _, err := tx.Relate(ctx, ports.Relation{EntityType: "Account", EntityID: "a1", Link: "contacts", ForeignType: "Contact", ForeignID: "missing"}); !httperr.IsNotFound(err) {
			t.Fatalf("err=%v", err)
		}
		if _, err := tx.Follow(ctx, "Account", "a2", "u1"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	got, _ := findIDs(t, s, ports.StoreQuery{Where: types.Where{{Type: types.WhereLinkedWith, Attribute: "contacts", Value: "c1"}}})
	if len(got) != 1 || got[0] != "a1" {
		t.Fatalf("linked=%v", got)
	}
	got, _ = findIDs(t, s, ports.StoreQuery{FollowedBy: "u1"})
	if len(got) != 1 || got[0] != "a2" {
		t.Fatalf("followed=%v", got)
	}

	err = s.WithTx(ctx, "t1", func(tx ports.RecordTx) error {
		if err := tx.RepointRelations(ctx, "Account", "a1", "a2"); err != nil {
			return err
		}
		if err := tx.RepointFollows(ctx, "Account", "a2", "a3"); err != nil {
			return err
		}
		ids, err := tx.RelatedIDs(ctx, "Account", "a2", "contacts")
		if err != nil || len(ids) != 1 || ids[0] != "c1" {
			t.Fatalf("ids=%v err=%v", ids, err)
		}
		ids, _ = tx.RelatedIDs(ctx, "Account", "a1", "contacts")
		if len(ids) != 0 {
			t.Fatalf("stale ids=%v", ids)
		}
		if err := tx.Delete(ctx, "Account", "a2"); err != nil {
			return err
		}
		ok, err := tx.Unrelate(ctx, ports.Relation{EntityType: "Account", EntityID: "a2", Link: "contacts", ForeignType: "Contact", ForeignID: "c1"})
		if err != nil || ok {
			t.Fatalf("relation should be gone with its record: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	got, _ = findIDs(t, s, ports.StoreQuery{FollowedBy: "u1"})
	if len(got) != 1 || got[0] != "a3" {
		t.Fatalf("followed after repoint=%v", got)
	}
}

func TestMemoryStore_InsertUpdateErrors(t *testing.T) {
	s := newSeededMemoryStore(t)
	ctx := context.Background()
	_ = s.WithTx(ctx, "t1", func(tx ports.RecordTx) error {
		if err := tx.Insert(ctx, types.NewEntity("Account", map[string]any{"id": "a1"})); !httperr.IsConflict(err) {
			t.Fatalf("err=%v", err)
		}
		if err := tx.Insert(ctx, types.NewEntity("Account", map[string]any{})); !httperr.IsBadRequest(err) {
			t.Fatalf("err=%v", err)
		}
		if err := tx.Update(ctx, types.NewEntity("Account", map[string]any{"id": "zz"})); !httperr.IsNotFound(err) {
			t.Fatalf("err=%v", err)
		}
		if err := tx.Delete(ctx, "Account", "zz"); !httperr.IsNotFound(err) {
			t.Fatalf("err=%v", err)
		}
		return nil
	})
}

func TestLikeToRegexp(t *testing.T) {
	if got := likeToRegexp("a.b%_"); got != `(?is)^a\.b.*.$` {
		t.Fatalf("got=%q", got)
	}
}

func TestCELProgramCache_Reuse(t *testing.T) {
	c, err := newCELProgramCache(4)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	p1, err := compileCELPredicate(types.Where{types.Equals("a", "x")})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	p2, _ := compileCELPredicate(types.Where{types.Equals("a", "y")})
	if p1.expr != p2.expr {
		t.Fatalf("expected shared shape: %q vs %q", p1.expr, p2.expr)
	}
	if _, err := c.loadOrCompile(p1.expr); err != nil {
		t.Fatalf("err=%v", err)
	}
	if c.programs.Len() != 1 {
		t.Fatalf("len=%d", c.programs.Len())
	}
	if _, err := c.loadOrCompile(p2.expr); err != nil {
		t.Fatalf("err=%v", err)
	}
	if c.programs.Len() != 1 {
		t.Fatalf("len=%d", c.programs.Len())
	}
	if _, err := c.loadOrCompile(`"x"`); err == nil {
		t.Fatal("expected output type error")
	}
}
