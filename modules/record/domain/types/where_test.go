package types

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

func TestParseWhere(t *testing.T) {
	t.Run("empty and null", func(t *testing.T) {
		for _, in := range []string{"", "  ", "null"} {
			w, err := ParseWhere([]byte(in))
			if err != nil || w != nil {
				t.Fatalf("in=%q w=%v err=%v", in, w, err)
			}
		}
	})

	t.Run("empty array is present", func(t *testing.T) {
		w, err := ParseWhere([]byte(`[]`))
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if w == nil || len(w) != 0 {
			t.Fatalf("w=%#v", w)
		}
	})

	t.Run("nested groups and field alias", func(t *testing.T) {
		raw := `[{"type":"equals","attribute":"status","value":"open"},
			{"type":"or","value":[{"type":"in","field":"stage","value":["a","b"]},{"type":"isNull","attribute":"stage"}]}]`
		w, err := ParseWhere([]byte(raw))
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if len(w) != 2 || w[1].Type != WhereOr || len(w[1].Items) != 2 {
			t.Fatalf("w=%#v", w)
		}
		if w[1].Items[0].Attribute != "stage" {
			t.Fatalf("attribute=%q", w[1].Items[0].Attribute)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		cases := map[string]string{
			"object":         `{"type":"equals"}`,
			"bad json":       `[{`,
			"unknown type":   `[{"type":"sounds","attribute":"a","value":"x"}]`,
			"bad attribute":  `[{"type":"equals","attribute":"a;drop","value":"x"}]`,
			"in scalar":      `[{"type":"in","attribute":"a","value":"x"}]`,
			"between one":    `[{"type":"between","attribute":"a","value":[1]}]`,
			"empty group":    `[{"type":"and","value":[]}]`,
			"equals object":  `[{"type":"equals","attribute":"a","value":{"x":1}}]`,
			"like number":    `[{"type":"like","attribute":"a","value":1}]`,
			"linked nothing": `[{"type":"linkedWith","attribute":"teams","value":[]}]`,
		}
		for name, raw := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseWhere([]byte(raw))
				if !httperr.IsBadRequest(err) {
					t.Fatalf("err=%v", err)
				}
			})
		}
	})
}

func TestWhereItem_MarshalRoundTripKeepsGroups(t *testing.T) {
	w := Where{Or(Equals("a", "x"), IDsIn([]string{"1", "2"}))}
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	got, err := ParseWhere(b)
	if err != nil {
		t.Fatalf("err=%v body=%s", err, b)
	}
	if len(got) != 1 || len(got[0].Items) != 2 || got[0].Items[1].Attribute != AttributeID {
		t.Fatalf("got=%#v", got)
	}
}

func TestWhere_AndDoesNotAlias(t *testing.T) {
	base := make(Where, 1, 4)
	base[0] = Equals("a", "x")
	one := base.And(Where{Equals("b", "y")})
	two := base.And(Where{Equals("c", "z")})
	if one[1].Attribute != "b" || two[1].Attribute != "c" {
		t.Fatalf("one=%v two=%v", one, two)
	}
}

func TestLinkedIDs(t *testing.T) {
	ids, err := LinkedIDs("u1")
	if err != nil || len(ids) != 1 {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
	ids, err = LinkedIDs([]any{"u1", "u2"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
	if _, err := LinkedIDs([]any{"u1", 3.0}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMassTarget(t *testing.T) {
	if !(MassTarget{}).IsEmpty() {
		t.Fatal("expected empty")
	}
	if (MassTarget{ByWhere: true}).UsesPredicate() {
		t.Fatal("byWhere without where must not use predicate")
	}
	if !(MassTarget{ByWhere: true, Where: Where{}, IDs: []string{"x"}}).UsesPredicate() {
		t.Fatal("expected predicate")
	}
	if (MassTarget{Where: Where{Equals("a", 1)}, IDs: []string{"x"}}).UsesPredicate() {
		t.Fatal("where without byWhere must use ids")
	}
}

func TestEntity(t *testing.T) {
	src := map[string]any{"id": "e1", "name": "A"}
	e := NewEntity("Account", src)
	src["name"] = "changed"
	if v, _ := e.Get("name"); v != "A" {
		t.Fatalf("name=%v", v)
	}
	e.SetMultiple(map[string]any{"id": "other", "name": "B"})
	if e.ID() != "e1" {
		t.Fatalf("id=%q", e.ID())
	}
	vm := e.ValueMap()
	vm["name"] = "C"
	if v, _ := e.Get("name"); v != "B" {
		t.Fatalf("name=%v", v)
	}
	var nilEntity *Entity
	if nilEntity.ID() != "" {
		t.Fatal("expected empty id")
	}
}

func TestActorContext(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatal("expected no actor")
	}
	ctx := WithActor(context.Background(), Actor{UserID: "u1", Role: RoleAdmin})
	a, ok := ActorFromContext(ctx)
	if !ok || !a.IsAdmin() || a.UserID != "u1" {
		t.Fatalf("actor=%+v ok=%v", a, ok)
	}
}
