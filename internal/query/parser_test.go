package query

import "testing"

func TestParseSimpleMutation(t *testing.T) {
	m, err := ParseMutation(`mutate { P { name:"hi" } }`, nil)
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	if len(m.Roots) != 1 {
		t.Fatalf("roots = %d, want 1", len(m.Roots))
	}
	root := m.Roots[0]
	if root.Entity != "P" {
		t.Fatalf("entity = %q, want P", root.Entity)
	}
	sv, ok := root.Fields["name"].(Scalar)
	if !ok || sv.Value != "hi" {
		t.Fatalf("name field = %+v, want Scalar{hi}", root.Fields["name"])
	}
}

func TestParseMutationWithVariable(t *testing.T) {
	m, err := ParseMutation(`mutate { Person { room_id: $room, name: $name } }`, nil)
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	root := m.Roots[0]
	if v, ok := root.Fields["room_id"].(Variable); !ok || v.Name != "room" {
		t.Fatalf("room_id field = %+v, want Variable{room}", root.Fields["room_id"])
	}
}

func TestParseMutationWithNestedEntity(t *testing.T) {
	m, err := ParseMutation(`mutate { Group { name:"g", owner: Person{name:"a"} } }`, nil)
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	root := m.Roots[0]
	nested, ok := root.Fields["owner"].(NestedEntity)
	if !ok {
		t.Fatalf("owner field = %+v, want NestedEntity", root.Fields["owner"])
	}
	if nested.Mutation.Entity != "Person" {
		t.Fatalf("nested entity = %q, want Person", nested.Mutation.Entity)
	}
}

func TestParseMutationWithNestedArray(t *testing.T) {
	m, err := ParseMutation(`mutate { Group { members: [Person{name:"a"}, Person{name:"b"}] } }`, nil)
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	root := m.Roots[0]
	arr, ok := root.Fields["members"].(NestedArray)
	if !ok {
		t.Fatalf("members field = %+v, want NestedArray", root.Fields["members"])
	}
	if len(arr.Mutations) != 2 {
		t.Fatalf("nested array length = %d, want 2", len(arr.Mutations))
	}
}

func TestParseReadQuery(t *testing.T) {
	rq, err := ParseQuery(`{Person{name}}`, nil)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if rq.Entity != "Person" {
		t.Fatalf("entity = %q, want Person", rq.Entity)
	}
	if len(rq.Fields) != 1 || rq.Fields[0] != "name" {
		t.Fatalf("fields = %v, want [name]", rq.Fields)
	}
}
