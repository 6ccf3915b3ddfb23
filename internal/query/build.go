package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discretlib/discret/internal/authz"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/model"
	"github.com/discretlib/discret/internal/uid"
)

// authCheck is one (room, entity, op) triple the authorisation phase must
// grant before the mutation may commit (§4.4). Auth is set when the check
// is for a UserAuth entry nested under an Authorisation's users/user_admin
// field, so the admin-rule check (§4.5) can consider that authorisation's
// own user_admins; it is uid.Nil for every other check, including UserAuth
// entries nested under Room.admins.
type authCheck struct {
	Room   uid.Uid
	Entity string
	Op     authz.Operation
	Auth   uid.Uid
}

// adminUpdate is one proposed UserAuthEntry to a room's admin list,
// collected during build so the authorisation phase can enforce §4.2's
// last-enabled-admin and no-self-demotion invariants against the full
// resulting admin set.
type adminUpdate struct {
	Room  uid.Uid
	Entry authz.UserAuthEntry
}

// buildResult is everything the build+defaulting phases produced, ready
// for authorisation, signing and commit.
type buildResult struct {
	nodes        []*graph.Node
	edges        []*graph.Edge
	edgeRooms    []uid.Uid // room each edges[i] belongs to, for daily-log marking
	edgeDeletes  []*graph.EdgeDeletionLogEntry
	checks       []authCheck
	adminUpdates []adminUpdate
}

// builder runs the build and defaulting phases of §4.4 against a live
// store, so it can load existing nodes and their outgoing edges.
type builder struct {
	ctx    context.Context
	dm     *model.DataModel
	store  *graph.Store
	peer   identity.VerifyingKey
	now    int64
	params map[string]interface{}
	result buildResult
}

// Build runs the read-only build phase (node/edge assembly, room_id
// propagation, defaulting) for every root of m, without touching
// authorisation, signing or the writer.
func Build(ctx context.Context, dm *model.DataModel, store *graph.Store, peer identity.VerifyingKey, now int64, m *Mutation) (*buildResult, error) {
	b := &builder{ctx: ctx, dm: dm, store: store, peer: peer, now: now, params: m.Params}
	for _, root := range m.Roots {
		if _, _, err := b.buildEntity(root, uid.Nil); err != nil {
			return nil, err
		}
	}
	return &b.result, nil
}

// buildEntity builds one EntityMutation (and recursively its nested
// fields), returning the node's id and room for the caller to wire an edge
// to.
func (b *builder) buildEntity(em *EntityMutation, parentRoom uid.Uid) (uid.Uid, uid.Uid, error) {
	entity, _, ok := b.dm.EntityByAnyNamespace(em.Entity)
	if !ok {
		return uid.Nil, uid.Nil, fmt.Errorf("%w: %s", ErrUnknownEntity, em.Entity)
	}

	id, existing, err := b.resolveTarget(em, entity.Name)
	if err != nil {
		return uid.Nil, uid.Nil, err
	}

	room := parentRoom
	if v, ok := em.Fields["room_id"]; ok {
		s, err := b.resolveScalarString(v)
		if err != nil {
			return uid.Nil, uid.Nil, err
		}
		if room, err = uid.Parse(s); err != nil {
			return uid.Nil, uid.Nil, fmt.Errorf("query: invalid room_id: %w", err)
		}
	}

	payload := map[string]interface{}{}
	if existing != nil {
		_ = existing.DecodeJSON(&payload)
	}

	for _, name := range em.FieldOrder {
		if name == "id" || name == "room_id" {
			continue
		}
		field, ok := entity.Fields[name]
		if !ok {
			return uid.Nil, uid.Nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, entity.Name, name)
		}
		val := em.Fields[name]
		if field.Type.IsScalar() {
			resolved, err := b.resolveValue(val)
			if err != nil {
				return uid.Nil, uid.Nil, err
			}
			payload[name] = resolved
			continue
		}
		if err := b.buildReference(entity, field, id, room, val); err != nil {
			return uid.Nil, uid.Nil, err
		}
	}

	if err := fillDefaults(entity, payload, existing != nil); err != nil {
		return uid.Nil, uid.Nil, err
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return uid.Nil, uid.Nil, fmt.Errorf("query: marshal fields: %w", err)
	}

	cdate := b.now
	if existing != nil {
		cdate = existing.CDate
	}
	node := &graph.Node{ID: id, RoomID: room, CDate: cdate, MDate: b.now, Entity: entity.Name, JSON: jsonBytes}
	b.result.nodes = append(b.result.nodes, node)
	b.result.checks = append(b.result.checks, authCheck{Room: room, Entity: entity.Name, Op: b.opFor(existing)})

	return id, room, nil
}

// buildReference builds a nested entity or array field and emits one edge
// insertion per nested entity; edges the field already holds are left in
// place, not deleted. UserAuth entries nested
// under Room.admins or an Authorisation's users/user_admin are additionally
// tagged so the authorisation phase can apply §4.2/§4.5's admin rules to
// them specifically.
func (b *builder) buildReference(owner *model.Entity, field *model.Field, ownerID, room uid.Uid, val FieldValue) error {
	isRoomAdmins := owner.Name == "Room" && field.Name == "admins"
	isAuthUsers := owner.Name == "Authorisation" && (field.Name == "users" || field.Name == "user_admin")

	build := func(m *EntityMutation) error {
		checkStart, nodeStart := len(b.result.checks), len(b.result.nodes)
		destID, _, err := b.buildEntity(m, room)
		if err != nil {
			return err
		}
		edge := &graph.Edge{Src: ownerID, SrcEntity: owner.ShortName, Label: field.ShortName, Dest: destID, CDate: b.now}
		b.result.edges = append(b.result.edges, edge)
		b.result.edgeRooms = append(b.result.edgeRooms, room)
		if isAuthUsers {
			for i := checkStart; i < len(b.result.checks); i++ {
				if b.result.checks[i].Entity == "UserAuth" {
					b.result.checks[i].Auth = ownerID
				}
			}
		}
		if isRoomAdmins {
			b.captureAdminEntries(room, b.result.nodes[nodeStart:])
		}
		return nil
	}

	switch v := val.(type) {
	case NestedEntity:
		return build(v.Mutation)
	case NestedArray:
		for _, m := range v.Mutations {
			if err := build(m); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("query: field %s.%s expects a nested entity or array", owner.Name, field.Name)
	}
}

// captureAdminEntries decodes any UserAuth nodes just built under
// Room.admins into proposed adminUpdates for room.
func (b *builder) captureAdminEntries(room uid.Uid, nodes []*graph.Node) {
	for _, n := range nodes {
		if n.Entity != "UserAuth" {
			continue
		}
		var payload struct {
			VerifyingKey string `json:"verifying_key"`
			Date         int64  `json:"date"`
			Enabled      bool   `json:"enabled"`
		}
		if err := n.DecodeJSON(&payload); err != nil {
			continue
		}
		vk, err := identity.ParseVerifyingKey(payload.VerifyingKey)
		if err != nil {
			continue
		}
		b.result.adminUpdates = append(b.result.adminUpdates, adminUpdate{
			Room:  room,
			Entry: authz.UserAuthEntry{VerifyingKey: vk, Date: payload.Date, Enabled: payload.Enabled},
		})
	}
}

// resolveTarget determines the node id a mutation targets and loads its
// current version if one exists (§4.4's "load-or-construct").
func (b *builder) resolveTarget(em *EntityMutation, entityName string) (uid.Uid, *graph.Node, error) {
	idVal, hasID := em.Fields["id"]
	if !hasID {
		return uid.MustNew(), nil, nil
	}
	s, err := b.resolveScalarString(idVal)
	if err != nil {
		return uid.Nil, nil, err
	}
	id, err := uid.Parse(s)
	if err != nil {
		return uid.Nil, nil, fmt.Errorf("query: invalid id: %w", err)
	}
	existing, err := b.store.GetNode(b.ctx, entityName, id)
	if err == graph.ErrNotFound {
		return id, nil, nil
	}
	if err != nil {
		return uid.Nil, nil, err
	}
	return id, existing, nil
}

func (b *builder) opFor(existing *graph.Node) authz.Operation {
	if existing == nil || existing.VerifyingKey == b.peer {
		return authz.MutateSelf
	}
	return authz.MutateAll
}

func (b *builder) resolveValue(v FieldValue) (interface{}, error) {
	switch val := v.(type) {
	case Scalar:
		return val.Value, nil
	case Variable:
		pv, ok := b.params[val.Name]
		if !ok {
			return nil, fmt.Errorf("%w: $%s", ErrUnknownVariable, val.Name)
		}
		return pv, nil
	default:
		return nil, fmt.Errorf("query: expected a scalar or variable value")
	}
}

func (b *builder) resolveScalarString(v FieldValue) (string, error) {
	resolved, err := b.resolveValue(v)
	if err != nil {
		return "", err
	}
	s, ok := resolved.(string)
	if !ok {
		return "", fmt.Errorf("query: expected a string value, got %T", resolved)
	}
	return s, nil
}

// fillDefaults implements §4.4's defaulting phase: a brand-new entity's
// missing non-nullable scalar fields are filled from their declared
// default, or the mutation fails MissingUpdateField.
func fillDefaults(entity *model.Entity, payload map[string]interface{}, isUpdate bool) error {
	for _, name := range entity.FieldOrder {
		f := entity.Fields[name]
		if !f.Type.IsScalar() {
			continue
		}
		if _, present := payload[name]; present {
			continue
		}
		if f.Nullable {
			continue
		}
		if isUpdate {
			// existing rows may predate a field that was since added with
			// a default; only brand-new rows must supply every field.
			continue
		}
		if !f.HasDefault {
			return fmt.Errorf("%w: %s.%s", ErrMissingUpdateField, entity.Name, name)
		}
		payload[name] = f.DefaultValue
	}
	return nil
}
