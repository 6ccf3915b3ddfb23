package query

import "fmt"

// ParseMutation parses the mutation language of spec.md §4.4/scenario
// examples: `mutate { Entity { field: value, nested: Entity2{...}, arr:
// [Entity3{...}, ...] } ... }`. params supplies values for `$name`
// variable references.
func ParseMutation(src string, params map[string]interface{}) (*Mutation, error) {
	p := &mparser{lex: newQLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind == qIdent && p.cur.text == "mutate" {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(qLBrace, "'{'"); err != nil {
		return nil, err
	}
	var roots []*EntityMutation
	for p.cur.kind == qIdent {
		em, err := p.parseEntityMutation()
		if err != nil {
			return nil, err
		}
		roots = append(roots, em)
	}
	if _, err := p.expect(qRBrace, "'}'"); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Mutation{Roots: roots, Params: params}, nil
}

type mparser struct {
	lex *qlexer
	cur qtoken
}

func (p *mparser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *mparser) expect(k tokKind, what string) (qtoken, error) {
	if p.cur.kind != k {
		return qtoken{}, fmt.Errorf("query: expected %s at offset %d, got %q", what, p.cur.pos, p.cur.text)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return qtoken{}, err
	}
	return t, nil
}

func (p *mparser) parseEntityMutation() (*EntityMutation, error) {
	nameTok, err := p.expect(qIdent, "entity name")
	if err != nil {
		return nil, err
	}
	em := &EntityMutation{Alias: nameTok.text, Entity: nameTok.text, Fields: map[string]FieldValue{}}
	if _, err := p.expect(qLBrace, "'{'"); err != nil {
		return nil, err
	}
	for p.cur.kind == qIdent {
		fieldName, err := p.expect(qIdent, "field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(qColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseFieldValue()
		if err != nil {
			return nil, err
		}
		em.Fields[fieldName.text] = val
		em.FieldOrder = append(em.FieldOrder, fieldName.text)
		if p.cur.kind == qComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(qRBrace, "'}'"); err != nil {
		return nil, err
	}
	return em, nil
}

func (p *mparser) parseFieldValue() (FieldValue, error) {
	switch p.cur.kind {
	case qString:
		v := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Scalar{Value: v}, nil
	case qNumber:
		v := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Scalar{Value: parseNumberLiteral(v)}, nil
	case qVariable:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Variable{Name: name}, nil
	case qIdent:
		switch p.cur.text {
		case "true":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return Scalar{Value: true}, nil
		case "false":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return Scalar{Value: false}, nil
		case "null":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return Scalar{Value: nil}, nil
		default:
			em, err := p.parseEntityMutation()
			if err != nil {
				return nil, err
			}
			return NestedEntity{Mutation: em}, nil
		}
	case qLBracket:
		if err := p.advance(); err != nil {
			return nil, err
		}
		var muts []*EntityMutation
		for p.cur.kind == qIdent {
			em, err := p.parseEntityMutation()
			if err != nil {
				return nil, err
			}
			muts = append(muts, em)
			if p.cur.kind == qComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expect(qRBracket, "']'"); err != nil {
			return nil, err
		}
		return NestedArray{Mutations: muts}, nil
	default:
		return nil, fmt.Errorf("query: invalid field value at offset %d", p.cur.pos)
	}
}

func parseNumberLiteral(text string) interface{} {
	var f float64
	var isFloat bool
	for _, c := range text {
		if c == '.' {
			isFloat = true
			break
		}
	}
	if isFloat {
		fmt.Sscanf(text, "%g", &f)
		return f
	}
	var i int64
	fmt.Sscanf(text, "%d", &i)
	return i
}
