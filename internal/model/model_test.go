package model

import (
	"errors"
	"testing"
)

func TestParseSimpleEntity(t *testing.T) {
	dm, err := Parse(`{Person{name:String}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, _, ok := dm.EntityByAnyNamespace("Person")
	if !ok {
		t.Fatal("Person entity not found")
	}
	f, ok := e.Fields["name"]
	if !ok {
		t.Fatal("name field not found")
	}
	if f.Type != String {
		t.Fatalf("name field type = %v, want String", f.Type)
	}
	if f.ShortName < FirstUserShortName {
		t.Fatalf("name field short_name = %d, want >= %d", f.ShortName, FirstUserShortName)
	}
}

func TestParseFieldWithDefault(t *testing.T) {
	dm, err := Parse(`{P{name:String, age:Integer default 4}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, _, _ := dm.EntityByAnyNamespace("P")
	age := e.Fields["age"]
	if !age.HasDefault {
		t.Fatal("age field should have a default")
	}
	if age.DefaultValue != int64(4) {
		t.Fatalf("age default = %v, want 4", age.DefaultValue)
	}
}

func TestParseArrayRef(t *testing.T) {
	dm, err := Parse(`{Group{name:String} Member{group:[Group]}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, _, ok := dm.EntityByAnyNamespace("Member")
	if !ok {
		t.Fatal("Member entity not found")
	}
	f := e.Fields["group"]
	if f.Type != ArrayRef || f.RefEntity != "Group" {
		t.Fatalf("group field = %+v, want ArrayRef to Group", f)
	}
}

func TestReservedEntityNameRejected(t *testing.T) {
	_, err := Parse(`{Room{name:String}}`)
	if err == nil {
		t.Fatal("expected error defining reserved entity name Room")
	}
}

// TestUpdateRejectsFieldTypeChange exercises scenario S6: evolving
// "{Person{name:String}}" into "{Person{name:Integer}}" must fail.
func TestUpdateRejectsFieldTypeChange(t *testing.T) {
	dm, err := Parse(`{Person{name:String}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	proposed, err := Parse(`{Person{name:Integer}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = dm.Update(proposed)
	if !errors.Is(err, ErrCannotUpdateFieldType) {
		t.Fatalf("Update error = %v, want ErrCannotUpdateFieldType", err)
	}
	// the original model must be left untouched
	e, _, _ := dm.EntityByAnyNamespace("Person")
	if e.Fields["name"].Type != String {
		t.Fatal("Update must not mutate dm when validation fails")
	}
}

func TestUpdateAddsNewFieldWithDefault(t *testing.T) {
	dm, err := Parse(`{Person{name:String}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	proposed, err := Parse(`{Person{name:String, age:Integer default 4}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := dm.Update(proposed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	e, _, _ := dm.EntityByAnyNamespace("Person")
	age, ok := e.Fields["age"]
	if !ok {
		t.Fatal("age field should have been added")
	}
	if age.ShortName < FirstUserShortName {
		t.Fatalf("age short_name = %d, want >= %d", age.ShortName, FirstUserShortName)
	}
	name := e.Fields["name"]
	if name.ShortName != FirstUserShortName {
		t.Fatalf("name short_name changed across Update: got %d, want %d", name.ShortName, FirstUserShortName)
	}
}

func TestUpdateRejectsNewNonNullableFieldWithoutDefault(t *testing.T) {
	dm, err := Parse(`{Person{name:String}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	proposed, err := Parse(`{Person{name:String, age:Integer}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := dm.Update(proposed); !errors.Is(err, ErrMissingDefaultValue) {
		t.Fatalf("Update error = %v, want ErrMissingDefaultValue", err)
	}
}

func TestUpdateRejectsEntityRemoval(t *testing.T) {
	dm, err := Parse(`{Person{name:String} Pet{name:String}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	proposed, err := Parse(`{Person{name:String}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := dm.Update(proposed); !errors.Is(err, ErrCannotRemoveEntity) {
		t.Fatalf("Update error = %v, want ErrCannotRemoveEntity", err)
	}
}

func TestSystemEntitiesPreinstalled(t *testing.T) {
	dm := New()
	for _, name := range []string{"Room", "Authorisation", "UserAuth", "EntityRight", "Peer", "AllowedPeer", "Invite", "OwnedInvite"} {
		if _, ok := dm.Entity(SysNamespace, name); !ok {
			t.Fatalf("system entity %q missing", name)
		}
	}
}
