package graph

import (
	"context"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// WriteNode signs and submits a single node as its own batch. Callers
// building a multi-node mutation should instead construct a WriteBatch and
// call Store.Submit directly so every row commits atomically.
func (s *Store) WriteNode(ctx context.Context, n *Node, sk *identity.SigningKey) error {
	n.Sign(sk)
	return s.Submit(ctx, WriteBatch{Nodes: []*Node{n}})
}

// WriteEdge signs and submits a single edge.
func (s *Store) WriteEdge(ctx context.Context, e *Edge, sk *identity.SigningKey) error {
	e.Sign(sk)
	return s.Submit(ctx, WriteBatch{Edges: []*Edge{e}})
}

// DeleteNode soft-deletes id by inserting a new tombstone version (entity
// rewritten with TombstonePrefix, payload cleared) and a signed deletion
// log entry, so the deletion itself replicates (§4.4).
func (s *Store) DeleteNode(ctx context.Context, entity string, id uid.Uid, room uid.Uid, mdate int64, sk *identity.SigningKey) error {
	tomb := &Node{
		ID:     id,
		RoomID: room,
		CDate:  mdate,
		MDate:  mdate,
		Entity: TombstonePrefix + entity,
	}
	tomb.Sign(sk)
	del := &NodeDeletionLogEntry{Room: room, ID: id, Entity: entity, DeletionDate: mdate}
	del.Sign(sk)
	return s.Submit(ctx, WriteBatch{Nodes: []*Node{tomb}, NodeDeletes: []*NodeDeletionLogEntry{del}})
}

// DeleteEdge removes a live edge and records a signed deletion log entry.
func (s *Store) DeleteEdge(ctx context.Context, room uid.Uid, srcEntity int, src uid.Uid, label int, dest uid.Uid, mdate int64, sk *identity.SigningKey) error {
	del := &EdgeDeletionLogEntry{Room: room, SrcEntity: srcEntity, Src: src, Dest: dest, Label: label, DeletionDate: mdate}
	del.Sign(sk)
	return s.Submit(ctx, WriteBatch{EdgeDeletes: []*EdgeDeletionLogEntry{del}})
}

// ArchiveNode replaces a node's live payload with an empty one while
// keeping its entity name intact, used for EnableArchives entities where
// old versions are pruned but the identity/id stays resolvable (§4.4).
func (s *Store) ArchiveNode(ctx context.Context, n *Node, sk *identity.SigningKey) error {
	archived := &Node{
		ID:     n.ID,
		RoomID: n.RoomID,
		CDate:  n.CDate,
		MDate:  n.MDate,
		Entity: n.Entity,
	}
	archived.Sign(sk)
	return s.Submit(ctx, WriteBatch{Nodes: []*Node{archived}})
}
