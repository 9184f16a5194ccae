package types

import "maps"

const AttributeID = "id"

// Entity is one record of an entity type, held as an attribute value map.
type Entity struct {
	EntityType string
	Values     map[string]any
}

func NewEntity(entityType string, values map[string]any) *Entity {
	v := make(map[string]any, len(values))
	maps.Copy(v, values)
	return &Entity{EntityType: entityType, Values: v}
}

func (e *Entity) ID() string {
	if e == nil {
		return ""
	}
	id, _ := e.Values[AttributeID].(string)
	return id
}

func (e *Entity) Get(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.Values[name]
	return v, ok
}

func (e *Entity) Set(name string, value any) {
	if e.Values == nil {
		e.Values = make(map[string]any)
	}
	e.Values[name] = value
}

// SetMultiple overwrites every attribute present in values. The id attribute
// is never overwritten.
func (e *Entity) SetMultiple(values map[string]any) {
	for k, v := range values {
		if k == AttributeID {
			continue
		}
		e.Set(k, v)
	}
}

// ValueMap returns a shallow copy of the attribute values.
func (e *Entity) ValueMap() map[string]any {
	out := make(map[string]any, len(e.Values))
	maps.Copy(out, e.Values)
	return out
}

func (e *Entity) Clone() *Entity {
	return NewEntity(e.EntityType, e.Values)
}

func ValueMapList(collection []*Entity) []map[string]any {
	out := make([]map[string]any, 0, len(collection))
	for _, e := range collection {
		out = append(out, e.ValueMap())
	}
	return out
}
