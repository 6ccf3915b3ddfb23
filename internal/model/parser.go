package model

import (
	"fmt"
	"strconv"
)

// Parse reads the schema DSL described in spec.md §3.2 and returns a fresh
// DataModel. It always starts from a clean system namespace; callers that
// want to evolve an existing model should call existing.Update(Parse(src)).
func Parse(src string) (*DataModel, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	dm := New()
	for p.cur.kind != tokEOF {
		if err := p.parseNamespaceBlock(dm); err != nil {
			return nil, err
		}
	}
	return dm, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if p.cur.kind != k {
		return token{}, fmt.Errorf("model: expected %s at offset %d, got %q", what, p.cur.pos, p.cur.text)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return t, nil
}

// parseNamespaceBlock parses `[namespace] { entity_def* }`.
func (p *parser) parseNamespaceBlock(dm *DataModel) error {
	namespace := ""
	if p.cur.kind == tokIdent {
		namespace = p.cur.text
		if namespace == SysNamespace {
			return fmt.Errorf("model: namespace %q is reserved (MissingNamespace)", SysNamespace)
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return err
	}
	for p.cur.kind == tokIdent {
		if err := p.parseEntity(dm, namespace); err != nil {
			return err
		}
	}
	_, err := p.expect(tokRBrace, "'}'")
	return err
}

func (p *parser) parseEntity(dm *DataModel, namespace string) error {
	nameTok, err := p.expect(tokIdent, "entity name")
	if err != nil {
		return err
	}
	if IsReservedKeyword(nameTok.text) {
		return fmt.Errorf("model: %q is a reserved system entity name (ReservedKeyword)", nameTok.text)
	}
	e, err := dm.addEntity(namespace, nameTok.text)
	if err != nil {
		return err
	}

	// optional entity-level flags before the field block
	for p.cur.kind == tokIdent {
		switch p.cur.text {
		case "deprecated":
			e.Deprecated = true
		case "enable_full_text":
			e.EnableFullText = true
		case "enable_archives":
			e.EnableArchives = true
		default:
			goto fieldsBlock
		}
		if err := p.advance(); err != nil {
			return err
		}
	}

fieldsBlock:
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return err
	}
	nextShort := FirstUserShortName
	for p.cur.kind == tokIdent {
		f, err := p.parseField(nextShort)
		if err != nil {
			return err
		}
		if err := e.AddField(f); err != nil {
			return fmt.Errorf("model: %w (DuplicatedField)", err)
		}
		nextShort++
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	_, err = p.expect(tokRBrace, "'}'")
	return err
}

func (p *parser) parseField(shortName int) (*Field, error) {
	nameTok, err := p.expect(tokIdent, "field name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return nil, err
	}

	f := &Field{Name: nameTok.text, ShortName: shortName, Mutable: true}

	if p.cur.kind == tokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		refTok, err := p.expect(tokIdent, "referenced entity name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		f.Type = ArrayRef
		f.RefEntity = refTok.text
	} else {
		typeTok, err := p.expect(tokIdent, "field type")
		if err != nil {
			return nil, err
		}
		if t, ok := scalarTypeByName(typeTok.text); ok {
			f.Type = t
		} else {
			f.Type = EntityRef
			f.RefEntity = typeTok.text
		}
	}

	for p.cur.kind == tokIdent {
		switch p.cur.text {
		case "nullable":
			f.Nullable = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		case "deprecated":
			f.Deprecated = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		case "immutable":
			f.Mutable = false
			if err := p.advance(); err != nil {
				return nil, err
			}
		case "default":
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, err := p.parseDefaultValue(f.Type)
			if err != nil {
				return nil, err
			}
			f.DefaultValue = v
			f.HasDefault = true
		default:
			return f, nil
		}
	}
	return f, nil
}

func (p *parser) parseDefaultValue(t FieldType) (interface{}, error) {
	switch p.cur.kind {
	case tokNumber:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if t == Float {
			return strconv.ParseFloat(text, 64)
		}
		return strconv.ParseInt(text, 10, 64)
	case tokString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return text, nil
	case tokIdent:
		switch p.cur.text {
		case "true":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return true, nil
		case "false":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return false, nil
		}
	}
	return nil, fmt.Errorf("model: invalid default value at offset %d", p.cur.pos)
}

func scalarTypeByName(name string) (FieldType, bool) {
	switch name {
	case "Boolean":
		return Boolean, true
	case "Integer":
		return Integer, true
	case "Float":
		return Float, true
	case "String":
		return String, true
	case "Base64":
		return Base64, true
	case "Json":
		return Json, true
	default:
		return 0, false
	}
}
