package syncproto

import (
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// NodeWire is the over-the-wire encoding of a graph.Node (§6.4's
// serialized node rows), carried inside RoomNode/Nodes answers.
type NodeWire struct {
	ID           string `json:"id"`
	RoomID       string `json:"room_id,omitempty"`
	CDate        int64  `json:"cdate"`
	MDate        int64  `json:"mdate"`
	Entity       string `json:"entity"`
	JSON         []byte `json:"json,omitempty"`
	Binary       []byte `json:"binary,omitempty"`
	VerifyingKey string `json:"verifying_key"`
	Signature    []byte `json:"signature"`
}

func toNodeWire(n *graph.Node) NodeWire {
	w := NodeWire{
		ID:           n.ID.String(),
		CDate:        n.CDate,
		MDate:        n.MDate,
		Entity:       n.Entity,
		JSON:         n.JSON,
		Binary:       n.Binary,
		VerifyingKey: n.VerifyingKey.String(),
		Signature:    n.Signature[:],
	}
	if !n.RoomID.IsNil() {
		w.RoomID = n.RoomID.String()
	}
	return w
}

func fromNodeWire(w NodeWire) (*graph.Node, error) {
	id, err := uid.Parse(w.ID)
	if err != nil {
		return nil, err
	}
	var room uid.Uid
	if w.RoomID != "" {
		if room, err = uid.Parse(w.RoomID); err != nil {
			return nil, err
		}
	}
	vk, err := identity.ParseVerifyingKey(w.VerifyingKey)
	if err != nil {
		return nil, err
	}
	n := &graph.Node{
		ID:           id,
		RoomID:       room,
		CDate:        w.CDate,
		MDate:        w.MDate,
		Entity:       w.Entity,
		JSON:         w.JSON,
		Binary:       w.Binary,
		VerifyingKey: vk,
	}
	copy(n.Signature[:], w.Signature)
	return n, nil
}

// EdgeWire is the over-the-wire encoding of a graph.Edge.
type EdgeWire struct {
	Src          string `json:"src"`
	SrcEntity    int    `json:"src_entity"`
	Label        int    `json:"label"`
	Dest         string `json:"dest"`
	CDate        int64  `json:"cdate"`
	VerifyingKey string `json:"verifying_key"`
	Signature    []byte `json:"signature"`
}

func toEdgeWire(e *graph.Edge) EdgeWire {
	return EdgeWire{
		Src:          e.Src.String(),
		SrcEntity:    e.SrcEntity,
		Label:        e.Label,
		Dest:         e.Dest.String(),
		CDate:        e.CDate,
		VerifyingKey: e.VerifyingKey.String(),
		Signature:    e.Signature[:],
	}
}

func fromEdgeWire(w EdgeWire) (*graph.Edge, error) {
	src, err := uid.Parse(w.Src)
	if err != nil {
		return nil, err
	}
	dest, err := uid.Parse(w.Dest)
	if err != nil {
		return nil, err
	}
	vk, err := identity.ParseVerifyingKey(w.VerifyingKey)
	if err != nil {
		return nil, err
	}
	e := &graph.Edge{Src: src, SrcEntity: w.SrcEntity, Label: w.Label, Dest: dest, CDate: w.CDate, VerifyingKey: vk}
	copy(e.Signature[:], w.Signature)
	return e, nil
}

// NodeDeletionWire is the wire encoding of a graph.NodeDeletionLogEntry.
type NodeDeletionWire struct {
	Room         string `json:"room"`
	ID           string `json:"id"`
	Entity       string `json:"entity"`
	DeletionDate int64  `json:"deletion_date"`
	VerifyingKey string `json:"verifying_key"`
	Signature    []byte `json:"signature"`
}

func toNodeDeletionWire(d *graph.NodeDeletionLogEntry) NodeDeletionWire {
	return NodeDeletionWire{
		Room:         d.Room.String(),
		ID:           d.ID.String(),
		Entity:       d.Entity,
		DeletionDate: d.DeletionDate,
		VerifyingKey: d.VerifyingKey.String(),
		Signature:    d.Signature[:],
	}
}

func fromNodeDeletionWire(w NodeDeletionWire) (*graph.NodeDeletionLogEntry, error) {
	room, err := uid.Parse(w.Room)
	if err != nil {
		return nil, err
	}
	id, err := uid.Parse(w.ID)
	if err != nil {
		return nil, err
	}
	vk, err := identity.ParseVerifyingKey(w.VerifyingKey)
	if err != nil {
		return nil, err
	}
	d := &graph.NodeDeletionLogEntry{Room: room, ID: id, Entity: w.Entity, DeletionDate: w.DeletionDate, VerifyingKey: vk}
	copy(d.Signature[:], w.Signature)
	return d, nil
}

// RoomNodeResponse carries the latest version of a room's Room,
// Authorisation, EntityRight and UserAuth rows, of which the initiator
// ingests the Room and Authorisation ones; internal/query.LoadRoom reconstructs the room's admin/rights state by
// scanning every such row it has ever stored, so ingesting these
// (validated via internal/authz.ValidateIngestedEntry/ValidateIngestedRight)
// is itself the merge — no separate two-sided merge step is needed.
type RoomNodeResponse struct {
	Nodes []NodeWire `json:"nodes"`
}

// PeersForRoomResponse lists the verifying keys the remote knows to hold a
// UserAuth entry (enabled or not) in the given room, so the initiator can
// consider them as additional sync candidates (§4.7).
type PeersForRoomResponse struct {
	Peers []string `json:"peers"`
}

// NodeDeletionLogResponse carries a room's node deletion log.
type NodeDeletionLogResponse struct {
	Entries []NodeDeletionWire `json:"entries"`
}

// EdgeDeletionWire is the wire encoding of a graph.EdgeDeletionLogEntry.
type EdgeDeletionWire struct {
	Room         string `json:"room"`
	SrcEntity    int    `json:"src_entity"`
	Src          string `json:"src"`
	Dest         string `json:"dest"`
	Label        int    `json:"label"`
	DeletionDate int64  `json:"deletion_date"`
	VerifyingKey string `json:"verifying_key"`
	Signature    []byte `json:"signature"`
}

func toEdgeDeletionWire(d *graph.EdgeDeletionLogEntry) EdgeDeletionWire {
	return EdgeDeletionWire{
		Room:         d.Room.String(),
		SrcEntity:    d.SrcEntity,
		Src:          d.Src.String(),
		Dest:         d.Dest.String(),
		Label:        d.Label,
		DeletionDate: d.DeletionDate,
		VerifyingKey: d.VerifyingKey.String(),
		Signature:    d.Signature[:],
	}
}

func fromEdgeDeletionWire(w EdgeDeletionWire) (*graph.EdgeDeletionLogEntry, error) {
	room, err := uid.Parse(w.Room)
	if err != nil {
		return nil, err
	}
	src, err := uid.Parse(w.Src)
	if err != nil {
		return nil, err
	}
	dest, err := uid.Parse(w.Dest)
	if err != nil {
		return nil, err
	}
	vk, err := identity.ParseVerifyingKey(w.VerifyingKey)
	if err != nil {
		return nil, err
	}
	d := &graph.EdgeDeletionLogEntry{Room: room, SrcEntity: w.SrcEntity, Src: src, Dest: dest, Label: w.Label, DeletionDate: w.DeletionDate, VerifyingKey: vk}
	copy(d.Signature[:], w.Signature)
	return d, nil
}

// EdgeDeletionLogResponse carries a room's edge deletion log.
type EdgeDeletionLogResponse struct {
	Entries []EdgeDeletionWire `json:"entries"`
}

// NodeIdentifiersResponse lists (id, mdate) pairs for a bucket, letting the
// initiator diff against its own bucket contents before pulling full rows.
type NodeIdentifiersResponse struct {
	Identifiers []NodeIdentifier `json:"identifiers"`
}

// NodesResponse carries full node rows for a batch pull.
type NodesResponse struct {
	Nodes []NodeWire `json:"nodes"`
}
