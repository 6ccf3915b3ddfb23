package model

import "fmt"

// Evolution errors, named after the wire error kinds spec.md §7 expects a
// schema update to surface.
var (
	ErrCannotUpdateFieldType  = fmt.Errorf("model: CannotUpdateFieldType")
	ErrMissingDefaultValue    = fmt.Errorf("model: MissingDefaultValue")
	ErrCannotRemoveEntity     = fmt.Errorf("model: CannotRemoveEntity")
	ErrCannotRemoveNamespace  = fmt.Errorf("model: CannotRemoveNamespace")
	ErrCannotChangeRefEntity  = fmt.Errorf("model: CannotChangeRefEntity")
	ErrCannotUnNullifyField   = fmt.Errorf("model: CannotUnNullifyFieldWithoutDefault")
)

// Update merges proposed into dm in place, enforcing the backward-compatible
// evolution rules of spec.md §3.2:
//   - an existing entity may never disappear, nor may an existing namespace
//   - an existing field's type and referenced entity are immutable once set
//   - a field may go from non-nullable to nullable freely, but the reverse
//     requires a default value so already-replicated rows stay valid
//   - a brand-new non-nullable scalar field must carry a default
//   - short_names, once assigned, are never reassigned: fields and entities
//     present in dm keep their short_name; only genuinely new ones are
//     allocated the next free short_name in their namespace
//
// On any violation dm is left unmodified and the first offending error is
// returned.
func (dm *DataModel) Update(proposed *DataModel) error {
	if err := dm.validateUpdate(proposed); err != nil {
		return err
	}
	for _, ns := range proposed.SortedNamespaces() {
		if ns == SysNamespace {
			continue
		}
		if _, ok := dm.Namespaces[ns]; !ok {
			dm.Namespaces[ns] = make(map[string]*Entity)
			dm.nextShortName[ns] = 0
		}
		for _, name := range sortedEntityNames(proposed.Namespaces[ns]) {
			newE := proposed.Namespaces[ns][name]
			if curE, exists := dm.Namespaces[ns][name]; exists {
				mergeEntity(curE, newE)
				continue
			}
			newE.ShortName = dm.nextShortName[ns]
			dm.nextShortName[ns]++
			dm.Namespaces[ns][name] = newE
			reassignFieldShortNames(newE)
		}
	}
	return nil
}

// validateUpdate checks the whole proposed model against dm without
// mutating either, so Update is all-or-nothing.
func (dm *DataModel) validateUpdate(proposed *DataModel) error {
	for ns, entities := range dm.Namespaces {
		if ns == SysNamespace {
			continue
		}
		propNS, ok := proposed.Namespaces[ns]
		if !ok {
			if len(entities) > 0 {
				return fmt.Errorf("%w: namespace %q", ErrCannotRemoveNamespace, ns)
			}
			continue
		}
		for name, curE := range entities {
			newE, ok := propNS[name]
			if !ok {
				return fmt.Errorf("%w: %q in namespace %q", ErrCannotRemoveEntity, name, ns)
			}
			if err := validateFieldEvolution(curE, newE); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateFieldEvolution(curE, newE *Entity) error {
	for _, name := range curE.FieldOrder {
		curF := curE.Fields[name]
		newF, ok := newE.Fields[name]
		if !ok {
			// Fields, like entities, are never removed; they are only
			// deprecated. A proposal silent on an existing field is treated
			// as carrying it forward unchanged, so nothing to check here.
			continue
		}
		if newF.Type != curF.Type {
			return fmt.Errorf("%w: entity %q field %q: %s -> %s", ErrCannotUpdateFieldType, curE.Name, name, curF.Type, newF.Type)
		}
		if (curF.Type == EntityRef || curF.Type == ArrayRef) && newF.RefEntity != curF.RefEntity {
			return fmt.Errorf("%w: entity %q field %q: %s -> %s", ErrCannotChangeRefEntity, curE.Name, name, curF.RefEntity, newF.RefEntity)
		}
		if curF.Nullable && !newF.Nullable && !newF.HasDefault {
			return fmt.Errorf("%w: entity %q field %q", ErrCannotUnNullifyField, curE.Name, name)
		}
	}
	for _, name := range newE.FieldOrder {
		if _, existed := curE.Fields[name]; existed {
			continue
		}
		newF := newE.Fields[name]
		if newF.Type.IsScalar() && !newF.Nullable && !newF.HasDefault {
			return fmt.Errorf("%w: entity %q field %q", ErrMissingDefaultValue, newE.Name, name)
		}
	}
	return nil
}

// mergeEntity folds newE's fields into curE in place, preserving curE's
// short_name and every existing field's short_name, appending genuinely new
// fields in their proposed order.
func mergeEntity(curE, newE *Entity) {
	curE.EnableFullText = curE.EnableFullText || newE.EnableFullText
	curE.EnableArchives = curE.EnableArchives || newE.EnableArchives
	curE.Deprecated = newE.Deprecated

	nextShort := curE.nextFieldShortName()
	for _, name := range newE.FieldOrder {
		newF := newE.Fields[name]
		if curF, exists := curE.Fields[name]; exists {
			curF.Nullable = newF.Nullable
			curF.Deprecated = newF.Deprecated
			curF.Mutable = newF.Mutable
			if newF.HasDefault {
				curF.DefaultValue = newF.DefaultValue
				curF.HasDefault = true
			}
			continue
		}
		newF.ShortName = nextShort
		nextShort++
		curE.Fields[name] = newF
		curE.FieldOrder = append(curE.FieldOrder, name)
	}
}

func (e *Entity) nextFieldShortName() int {
	max := FirstUserShortName - 1
	for _, f := range e.Fields {
		if !f.IsSystem && f.ShortName > max {
			max = f.ShortName
		}
	}
	return max + 1
}

// reassignFieldShortNames stamps sequential short_names onto a brand-new
// entity's fields, in the order the parser discovered them.
func reassignFieldShortNames(e *Entity) {
	next := FirstUserShortName
	for _, name := range e.FieldOrder {
		e.Fields[name].ShortName = next
		next++
	}
}

func sortedEntityNames(entities map[string]*Entity) []string {
	out := make([]string, 0, len(entities))
	for name := range entities {
		out = append(out, name)
	}
	// deterministic order keeps short_name assignment for brand-new
	// entities reproducible across identical schema text.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
