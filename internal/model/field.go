// Package model parses and maintains Discret's user-defined schema DSL:
// entities, fields, indexes, and the backward-compatible evolution rules of
// spec.md §3.2 (C3).
package model

import "fmt"

// FieldType enumerates the scalar and reference kinds a Field may hold.
type FieldType int

const (
	Boolean FieldType = iota
	Integer
	Float
	String
	Base64
	Json
	EntityRef // a reference to a single other entity (nested entity / edge)
	ArrayRef  // a reference to zero or more other entities (nested array / edges)
)

func (t FieldType) String() string {
	switch t {
	case Boolean:
		return "Boolean"
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case String:
		return "String"
	case Base64:
		return "Base64"
	case Json:
		return "Json"
	case EntityRef:
		return "Entity"
	case ArrayRef:
		return "Array"
	default:
		return "Unknown"
	}
}

// IsScalar reports whether the type stores a plain value in _json rather
// than being materialised as an edge.
func (t FieldType) IsScalar() bool {
	return t != EntityRef && t != ArrayRef
}

// FirstUserShortName is the lowest short_name available to user fields;
// values below it are reserved for system fields (§3.2).
const FirstUserShortName = 32

// Field is one member of an Entity.
type Field struct {
	Name         string
	ShortName    int
	Type         FieldType
	RefEntity    string // set when Type is EntityRef/ArrayRef
	DefaultValue interface{}
	HasDefault   bool
	Nullable     bool
	Deprecated   bool
	Mutable      bool
	IsSystem     bool
}

// Validate checks field-local invariants independent of the rest of the model.
func (f *Field) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("model: field has empty name")
	}
	if !f.IsSystem && f.ShortName < FirstUserShortName {
		return fmt.Errorf("model: field %q short_name %d below reserved boundary %d", f.Name, f.ShortName, FirstUserShortName)
	}
	if (f.Type == EntityRef || f.Type == ArrayRef) && f.RefEntity == "" {
		return fmt.Errorf("model: field %q of type %s must name a referenced entity", f.Name, f.Type)
	}
	return nil
}
