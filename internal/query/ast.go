// Package query implements Discret's mutation pipeline and read-query
// executor (C5): parsing the mutation/query language of spec.md §4.4 into
// an AST, the build/default/authorise/sign/commit phases, and a minimal
// read executor for `{Entity{field1,field2}}` queries.
package query

import "github.com/discretlib/discret/internal/uid"

// FieldValue is the value bound to one field of an EntityMutation: a
// literal, a bound variable, a nested single entity, or a nested list of
// entities (§4.4's Value | Variable | NestedEntity | NestedArray).
type FieldValue interface {
	isFieldValue()
}

// Scalar is a literal value (string/number/bool/null) bound directly in
// the mutation text.
type Scalar struct{ Value interface{} }

func (Scalar) isFieldValue() {}

// Variable references a parameter supplied alongside the mutation text,
// e.g. `name: $name`.
type Variable struct{ Name string }

func (Variable) isFieldValue() {}

// NestedEntity is a single embedded EntityMutation, building or updating a
// related node through an EntityRef field.
type NestedEntity struct{ Mutation *EntityMutation }

func (NestedEntity) isFieldValue() {}

// NestedArray is zero or more embedded EntityMutations through an ArrayRef
// field.
type NestedArray struct{ Mutations []*EntityMutation }

func (NestedArray) isFieldValue() {}

// EntityMutation is one node-shaped unit of a mutation: its alias (for
// result binding), the entity it targets, an optional existing id, and its
// field assignments (§4.4).
type EntityMutation struct {
	Alias  string
	Entity string
	ID     *uid.Uid // nil means "create"; set means "load or update"
	Fields map[string]FieldValue
	// FieldOrder preserves textual order for deterministic error messages
	// and defaulting iteration.
	FieldOrder []string
}

// Mutation is the parsed AST of one `mutate { ... }` request: one or more
// top-level entity mutations sharing one parameter map.
type Mutation struct {
	Roots  []*EntityMutation
	Params map[string]interface{}
}
