package model

import "fmt"

// Index describes a named secondary index over one or more fields. The
// query/mutation executor consults it when building read plans; its exact
// on-disk representation is owned by internal/storage.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// Entity is a user-defined (or system) node type: a name, a stable
// numeric short_name, and its ordered fields and indexes (§3.2).
type Entity struct {
	Name           string
	ShortName      int
	Fields         map[string]*Field
	FieldOrder     []string // insertion order, preserved across evolution
	Indexes        map[string]*Index
	EnableFullText bool
	EnableArchives bool
	Deprecated     bool
}

func newEntity(name string, shortName int) *Entity {
	return &Entity{
		Name:       name,
		ShortName:  shortName,
		Fields:     make(map[string]*Field),
		FieldOrder: nil,
		Indexes:    make(map[string]*Index),
	}
}

// AddField appends a field, preserving insertion order. It does not itself
// assign a short_name; callers (the parser, or Update during evolution)
// decide that.
func (e *Entity) AddField(f *Field) error {
	if _, exists := e.Fields[f.Name]; exists {
		return fmt.Errorf("model: entity %q: duplicated field %q", e.Name, f.Name)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	e.Fields[f.Name] = f
	e.FieldOrder = append(e.FieldOrder, f.Name)
	return nil
}

// FieldByShortName finds a field by its stable numeric id, used when
// decoding replicated wire payloads that reference fields by short_name.
func (e *Entity) FieldByShortName(short int) (*Field, bool) {
	for _, name := range e.FieldOrder {
		if f := e.Fields[name]; f.ShortName == short {
			return f, true
		}
	}
	return nil, false
}
