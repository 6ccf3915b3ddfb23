package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/uid"
)

// ReadQuery is the parsed form of `{Entity{field1,field2}}`: an entity name
// and the set of fields to project, optionally scoped to one room.
type ReadQuery struct {
	Entity string
	Fields []string
	Room   *uid.Uid
}

// ParseQuery parses the minimal read-query language spec.md's scenarios
// use: `{Entity{field1,field2}}`, optionally scoped to one room by a "room"
// entry in params holding the room's base64url id.
func ParseQuery(src string, params map[string]interface{}) (*ReadQuery, error) {
	p := &mparser{lex: newQLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(qLBrace, "'{'"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(qIdent, "entity name")
	if err != nil {
		return nil, err
	}
	rq := &ReadQuery{Entity: nameTok.text}

	if p.cur.kind == qLBracket {
		// reserved for future filter syntax; not in scope of the
		// scenarios this executor targets.
		return nil, fmt.Errorf("query: filter syntax not supported")
	}

	if _, err := p.expect(qLBrace, "'{'"); err != nil {
		return nil, err
	}
	for p.cur.kind == qIdent {
		rq.Fields = append(rq.Fields, p.cur.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == qComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(qRBrace, "'}'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(qRBrace, "'}'"); err != nil {
		return nil, err
	}
	if roomParam, ok := params["room"]; ok {
		if s, ok := roomParam.(string); ok {
			id, err := uid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("query: invalid room param: %w", err)
			}
			rq.Room = &id
		}
	}
	return rq, nil
}

// Query executes a read query against the live node set and returns one
// JSON-shaped map per matching row, each carrying "id" plus the requested
// fields.
func (e *Executor) Query(ctx context.Context, src string, params map[string]interface{}) ([]map[string]interface{}, error) {
	rq, err := ParseQuery(src, params)
	if err != nil {
		return nil, err
	}
	entity, _, ok := e.Model.EntityByAnyNamespace(rq.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, rq.Entity)
	}
	for _, f := range rq.Fields {
		if _, ok := entity.Fields[f]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, entity.Name, f)
		}
	}

	var room uid.Uid
	if rq.Room != nil {
		room = *rq.Room
	}
	nodes, err := e.Store.NodesByRoomEntity(ctx, room, entity.Name)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		row, err := projectFields(n, rq.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func projectFields(n *graph.Node, fields []string) (map[string]interface{}, error) {
	var full map[string]interface{}
	if n.JSON != nil {
		if err := json.Unmarshal(n.JSON, &full); err != nil {
			return nil, fmt.Errorf("query: decode node payload: %w", err)
		}
	}
	row := map[string]interface{}{"id": n.ID.String()}
	for _, f := range fields {
		row[f] = full[f]
	}
	return row, nil
}
