package metadata

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
)

const sampleYAML = `
version: 1
entities:
  Account:
    fields:
      name: { type: varchar, unique: true }
      status: { type: enum, options: [New, Active] }
      size: {}
    links:
      contacts: { type: hasMany, entity: Contact, foreign: account }
    filters:
      active:
        - { type: equals, attribute: status, value: Active }
    kanban: { statusField: status }
  Contact:
    fields:
      name: { type: varchar }
      emailAddress: { type: varchar, unique: true }
    links:
      account: { type: belongsTo, entity: Account, foreign: contacts }
    duplicateCheckFields: [name]
`

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := reg.EntityTypes(); len(got) != 2 || got[0] != "Account" {
		t.Fatalf("types=%v", got)
	}

	acc, ok := reg.Entity("Account")
	if !ok {
		t.Fatal("expected Account")
	}
	if f, _ := acc.Field("size"); f.Type != FieldTypeVarchar {
		t.Fatalf("default type=%q", f.Type)
	}
	if l, ok := acc.Link("contacts"); !ok || l.Entity != "Contact" || l.Foreign != "account" {
		t.Fatalf("link=%+v ok=%v", l, ok)
	}
	w, ok := acc.Filter("active")
	if !ok || len(w) != 1 || w[0].Type != types.WhereEquals || w[0].Value != "Active" {
		t.Fatalf("filter=%#v", w)
	}
	if got := acc.DuplicateFields(); len(got) != 1 || got[0] != "name" {
		t.Fatalf("dup=%v", got)
	}
	if got := acc.TextFields(); len(got) != 1 || got[0] != "name" {
		t.Fatalf("text=%v", got)
	}

	con, _ := reg.Entity("Contact")
	if got := con.DuplicateFields(); len(got) != 1 || got[0] != "name" {
		t.Fatalf("dup=%v", got)
	}
	if got := con.UniqueFields(); len(got) != 1 || got[0] != "emailAddress" {
		t.Fatalf("unique=%v", got)
	}
}

func TestEntity_ReturnsCopy(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	a, _ := reg.Entity("Account")
	a.Fields["name"] = FieldDef{Name: "name", Type: FieldTypeInt}
	a.Kanban.StatusField = "other"

	b, _ := reg.Entity("Account")
	if b.Fields["name"].Type != FieldTypeVarchar || b.Kanban.StatusField != "status" {
		t.Fatalf("registry mutated: %+v", b)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":       "{",
		"version":        "version: 2\nentities: {A: {}}",
		"no entities":    "version: 1",
		"unknown link":   "version: 1\nentities:\n  A:\n    links:\n      b: { entity: B }",
		"bad filter":     "version: 1\nentities:\n  A:\n    filters:\n      x: [{ type: nope, attribute: a }]",
		"bad kanban":     "version: 1\nentities:\n  A:\n    kanban: { statusField: missing }",
		"bad dup field":  "version: 1\nentities:\n  A:\n    duplicateCheckFields: [missing]",
		"bad field name": "version: 1\nentities:\n  A:\n    fields:\n      \"a-b\": {}",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("caller")
	}
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "config", "metadata", "entities.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("config not found: %v", err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	for _, name := range []string{"Account", "Contact", "Opportunity"} {
		if !reg.Has(name) {
			t.Fatalf("missing %s", name)
		}
	}
}
