package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
)

const (
	FieldTypeVarchar  = "varchar"
	FieldTypeText     = "text"
	FieldTypeInt      = "int"
	FieldTypeFloat    = "float"
	FieldTypeBool     = "bool"
	FieldTypeEnum     = "enum"
	FieldTypeDate     = "date"
	FieldTypeLink     = "link"
	FieldTypeUnit     = "unit"
	FieldTypeCurrency = "currency"
)

const (
	LinkTypeHasMany    = "hasMany"
	LinkTypeBelongsTo  = "belongsTo"
	LinkTypeManyToMany = "manyMany"
)

type FieldDef struct {
	Name     string   `yaml:"-"`
	Type     string   `yaml:"type"`
	Unique   bool     `yaml:"unique"`
	Required bool     `yaml:"required"`
	Options  []string `yaml:"options"`
}

type LinkDef struct {
	Name    string `yaml:"-"`
	Type    string `yaml:"type"`
	Entity  string `yaml:"entity"`
	Foreign string `yaml:"foreign"`
}

type KanbanDef struct {
	StatusField string `yaml:"statusField"`
}

type EntityDef struct {
	Name                 string
	Fields               map[string]FieldDef
	Links                map[string]LinkDef
	Filters              map[string]types.Where
	TextFilterFields     []string
	Kanban               *KanbanDef
	DuplicateCheckFields []string
}

type entityDefYAML struct {
	Fields               map[string]FieldDef `yaml:"fields"`
	Links                map[string]LinkDef  `yaml:"links"`
	Filters              map[string]any      `yaml:"filters"`
	TextFilterFields     []string            `yaml:"textFilterFields"`
	Kanban               *KanbanDef          `yaml:"kanban"`
	DuplicateCheckFields []string            `yaml:"duplicateCheckFields"`
}

type documentYAML struct {
	Version  int                      `yaml:"version"`
	Entities map[string]entityDefYAML `yaml:"entities"`
}

// Registry holds entity definitions. It is immutable after Parse and lookups
// return copies.
type Registry struct {
	entities map[string]EntityDef
}

func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Registry, error) {
	var doc documentYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.Version != 1 {
		return nil, errors.New("metadata: unsupported version")
	}
	if len(doc.Entities) == 0 {
		return nil, errors.New("metadata: missing entities")
	}

	reg := &Registry{entities: make(map[string]EntityDef, len(doc.Entities))}
	for name, raw := range doc.Entities {
		def, err := buildEntityDef(name, raw)
		if err != nil {
			return nil, err
		}
		reg.entities[name] = def
	}
	for name, def := range reg.entities {
		for _, l := range def.Links {
			if _, ok := reg.entities[l.Entity]; !ok {
				return nil, fmt.Errorf("metadata: %s.%s links unknown entity %q", name, l.Name, l.Entity)
			}
		}
	}
	return reg, nil
}

func buildEntityDef(name string, raw entityDefYAML) (EntityDef, error) {
	if !types.IsAttributeName(name) {
		return EntityDef{}, fmt.Errorf("metadata: invalid entity name %q", name)
	}
	def := EntityDef{
		Name:                 name,
		Fields:               make(map[string]FieldDef, len(raw.Fields)),
		Links:                make(map[string]LinkDef, len(raw.Links)),
		Filters:              make(map[string]types.Where, len(raw.Filters)),
		TextFilterFields:     raw.TextFilterFields,
		Kanban:               raw.Kanban,
		DuplicateCheckFields: raw.DuplicateCheckFields,
	}
	for fieldName, f := range raw.Fields {
		if !types.IsAttributeName(fieldName) {
			return EntityDef{}, fmt.Errorf("metadata: %s has invalid field name %q", name, fieldName)
		}
		f.Name = fieldName
		if strings.TrimSpace(f.Type) == "" {
			f.Type = FieldTypeVarchar
		}
		def.Fields[fieldName] = f
	}
	for linkName, l := range raw.Links {
		if !types.IsAttributeName(linkName) || l.Entity == "" {
			return EntityDef{}, fmt.Errorf("metadata: %s has invalid link %q", name, linkName)
		}
		l.Name = linkName
		def.Links[linkName] = l
	}
	for filterName, rawWhere := range raw.Filters {
		b, err := json.Marshal(rawWhere)
		if err != nil {
			return EntityDef{}, fmt.Errorf("metadata: %s filter %q: %w", name, filterName, err)
		}
		w, err := types.ParseWhere(b)
		if err != nil {
			return EntityDef{}, fmt.Errorf("metadata: %s filter %q: %w", name, filterName, err)
		}
		def.Filters[filterName] = w
	}
	if def.Kanban != nil {
		if _, ok := def.Fields[def.Kanban.StatusField]; !ok {
			return EntityDef{}, fmt.Errorf("metadata: %s kanban status field %q is not a field", name, def.Kanban.StatusField)
		}
	}
	for _, f := range def.DuplicateCheckFields {
		if _, ok := def.Fields[f]; !ok {
			return EntityDef{}, fmt.Errorf("metadata: %s duplicate check field %q is not a field", name, f)
		}
	}
	return def, nil
}

func (r *Registry) Entity(name string) (EntityDef, bool) {
	def, ok := r.entities[name]
	if !ok {
		return EntityDef{}, false
	}
	return cloneEntityDef(def), true
}

func (r *Registry) Has(name string) bool {
	_, ok := r.entities[name]
	return ok
}

func (r *Registry) EntityTypes() []string {
	out := make([]string, 0, len(r.entities))
	for name := range r.entities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (d EntityDef) Field(name string) (FieldDef, bool) {
	f, ok := d.Fields[name]
	return f, ok
}

func (d EntityDef) Link(name string) (LinkDef, bool) {
	l, ok := d.Links[name]
	return l, ok
}

func (d EntityDef) Filter(name string) (types.Where, bool) {
	w, ok := d.Filters[name]
	return w, ok
}

func (d EntityDef) UniqueFields() []string {
	var out []string
	for name, f := range d.Fields {
		if f.Unique {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// DuplicateFields returns the fields compared by duplicate detection. When
// none are declared the unique fields are used.
func (d EntityDef) DuplicateFields() []string {
	if len(d.DuplicateCheckFields) > 0 {
		return slices.Clone(d.DuplicateCheckFields)
	}
	return d.UniqueFields()
}

func (d EntityDef) TextFields() []string {
	if len(d.TextFilterFields) > 0 {
		return slices.Clone(d.TextFilterFields)
	}
	return []string{"name"}
}

func (d EntityDef) FieldNames() []string {
	out := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func cloneEntityDef(in EntityDef) EntityDef {
	out := in
	out.Fields = make(map[string]FieldDef, len(in.Fields))
	for k, v := range in.Fields {
		v.Options = slices.Clone(v.Options)
		out.Fields[k] = v
	}
	out.Links = make(map[string]LinkDef, len(in.Links))
	for k, v := range in.Links {
		out.Links[k] = v
	}
	out.Filters = make(map[string]types.Where, len(in.Filters))
	for k, v := range in.Filters {
		out.Filters[k] = slices.Clone(v)
	}
	out.TextFilterFields = slices.Clone(in.TextFilterFields)
	out.DuplicateCheckFields = slices.Clone(in.DuplicateCheckFields)
	if in.Kanban != nil {
		k := *in.Kanban
		out.Kanban = &k
	}
	return out
}
