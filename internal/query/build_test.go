package query

import (
	"errors"
	"testing"

	"github.com/discretlib/discret/internal/model"
)

func personPSchema(t *testing.T) *model.Entity {
	t.Helper()
	dm, err := model.Parse(`{P{name:String, age:Integer default 4}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, _, ok := dm.EntityByAnyNamespace("P")
	if !ok {
		t.Fatal("P entity not found")
	}
	return e
}

func TestFillDefaultsAppliesDeclaredDefault(t *testing.T) {
	e := personPSchema(t)
	payload := map[string]interface{}{"name": "hi"}
	if err := fillDefaults(e, payload, false); err != nil {
		t.Fatalf("fillDefaults: %v", err)
	}
	if payload["age"] != int64(4) {
		t.Fatalf("age = %v, want 4", payload["age"])
	}
}

func TestFillDefaultsFailsWithoutDefault(t *testing.T) {
	dm, err := model.Parse(`{Q{name:String, count:Integer}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, _, _ := dm.EntityByAnyNamespace("Q")
	payload := map[string]interface{}{"name": "hi"}
	err = fillDefaults(e, payload, false)
	if !errors.Is(err, ErrMissingUpdateField) {
		t.Fatalf("err = %v, want ErrMissingUpdateField", err)
	}
}

func TestFillDefaultsSkipsUpdates(t *testing.T) {
	dm, err := model.Parse(`{Q{name:String, count:Integer}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, _, _ := dm.EntityByAnyNamespace("Q")
	payload := map[string]interface{}{"name": "hi"}
	if err := fillDefaults(e, payload, true); err != nil {
		t.Fatalf("fillDefaults on update should not require missing fields: %v", err)
	}
}
