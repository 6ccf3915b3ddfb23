// Package syncproto drives Discret's peer synchronisation protocol (C8):
// the handshake, room-list phase, per-room comparison/merge, and
// per-bucket node/edge pull described in spec.md §4.7, layered over
// internal/transport's framed QUIC streams.
package syncproto

// Op names a Query's body variant (§6.4). Payloads are JSON rather than a
// binary format, matching this expansion's transport.Query envelope.
type Op string

const (
	OpProveIdentity Op = "ProveIdentity"
	OpRoomList      Op = "RoomList"
	OpRoomDefinition Op = "RoomDefinition"
	OpRoomNode      Op = "RoomNode"
	OpPeersForRoom  Op = "PeersForRoom"
	OpRoomLog       Op = "RoomLog"
	OpNodeDeletionLog Op = "NodeDeletionLog"
	OpEdgeDeletionLog Op = "EdgeDeletionLog"
	OpNodeIdentifiers Op = "NodeIdentifiers"
	OpNodes         Op = "Nodes"
	OpEdgeRoomLog     Op = "EdgeRoomLog"
	OpEdgeIdentifiers Op = "EdgeIdentifiers"
	OpEdges           Op = "Edges"
)

// ProveIdentityRequest carries the random challenge the remote must sign
// (§4.7 step 1).
type ProveIdentityRequest struct {
	Challenge []byte `json:"challenge"`
}

// ProveIdentityResponse is the identity proof: the responder's verifying
// key and a signature over the caller's challenge. The QUIC certificate is
// ephemeral (transport.GenerateTLSConfig), so this key is the only identity
// the peer presents.
type ProveIdentityResponse struct {
	VerifyingKey string `json:"verifying_key"`
	Signature    []byte `json:"signature"`
}

// RoomListResponse enumerates the room ids the remote shares with us.
type RoomListResponse struct {
	Rooms []string `json:"rooms"`
}

// RoomDefinitionResponse is the remote's daily-log rollup summary for one
// room, compared against the local rollup to decide what, if anything,
// needs synchronising (§4.7 step 1 of per-room sync).
type RoomDefinitionResponse struct {
	RoomID       string `json:"room_id"`
	RoomDefDate  int64  `json:"room_def_date"`
	LastDataDate int64  `json:"last_data_date"`
	DailyHash    []byte `json:"daily_hash"`
	HistoryHash  []byte `json:"history_hash"`
}

// RoomLogEntry is one (entity, day) bucket's hash, returned in bulk by
// RoomLog to let the initiator diff against its own buckets.
type RoomLogEntry struct {
	Entity string `json:"entity"`
	Day    int64  `json:"day"`
	Hash   []byte `json:"hash"`
}

// NodeIdentifier is a (id, mdate) pair identifying one version of a node,
// used to diff a bucket's contents without transferring full rows first
// (§4.7 step 5.c).
type NodeIdentifier struct {
	ID    string `json:"id"`
	MDate int64  `json:"mdate"`
}

// BucketRequest names one (room, entity, day) bucket a query targets.
type BucketRequest struct {
	Room   string `json:"room"`
	Entity string `json:"entity"`
	Day    int64  `json:"day"`
}

// NodesRequest asks for the full rows of specific ids within a bucket,
// batched to at most 2048 per request (§4.7 step 5.d).
type NodesRequest struct {
	Room   string   `json:"room"`
	Entity string   `json:"entity"`
	IDs    []string `json:"ids"`
}

// RoomLogResponse carries every (entity, day) bucket hash for a room.
type RoomLogResponse struct {
	Entries []RoomLogEntry `json:"entries"`
}

// MaxNodeBatch is the per-request node/edge pull cap of §4.7 step 5.d.
const MaxNodeBatch = 2048

// EdgeLogEntry is one (label, day) edge bucket's hash, the edge-side
// counterpart to RoomLogEntry. Edges have no entity name of their own, so
// they bucket by field label rather than entity string.
type EdgeLogEntry struct {
	Label int    `json:"label"`
	Day   int64  `json:"day"`
	Hash  []byte `json:"hash"`
}

// EdgeRoomLogResponse carries every (label, day) edge bucket hash for a room.
type EdgeRoomLogResponse struct {
	Entries []EdgeLogEntry `json:"entries"`
}

// EdgeBucketRequest names one (room, label, day) edge bucket a query targets.
type EdgeBucketRequest struct {
	Room  string `json:"room"`
	Label int    `json:"label"`
	Day   int64  `json:"day"`
}

// EdgeIdentifier is a (src, dest) pair identifying one edge within a bucket,
// used to diff a bucket's contents before pulling full rows. Edges carry no
// mdate to version by, so the pair alone is the diff key.
type EdgeIdentifier struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

// EdgeIdentifiersResponse lists (src, dest) pairs for an edge bucket.
type EdgeIdentifiersResponse struct {
	Identifiers []EdgeIdentifier `json:"identifiers"`
}

// EdgesRequest asks for the full rows of specific (src, dest) pairs within
// an edge bucket, batched to at most MaxNodeBatch per request.
type EdgesRequest struct {
	Room  string           `json:"room"`
	Label int              `json:"label"`
	Pairs []EdgeIdentifier `json:"pairs"`
}

// EdgesResponse carries full edge rows for a batch pull.
type EdgesResponse struct {
	Edges []EdgeWire `json:"edges"`
}
