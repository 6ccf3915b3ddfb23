// Package graph implements Discret's primitive node/edge store (C4): signed
// rows over the tables internal/storage migrates, soft-delete semantics,
// and the batching writer task described in §4.1/§4.5.
package graph

import (
	"encoding/binary"
	"encoding/json"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// TombstonePrefix marks an _entity value as a soft-deleted tombstone (§4.4):
// a deleted node keeps its row so deletion replicates, but its entity name
// is rewritten with this prefix and its payload cleared.
const TombstonePrefix = "$"

// Node is one versioned row of the _node table.
type Node struct {
	ID           uid.Uid
	RoomID       uid.Uid
	CDate        int64 // creation date, unix millis, immutable across versions
	MDate        int64 // modification date, unix millis, strictly increasing per ID
	Entity       string
	JSON         []byte // scalar field payload, nil for archived/tombstoned rows
	Binary       []byte
	VerifyingKey identity.VerifyingKey
	Signature    [identity.SignatureSize]byte
}

// IsTombstone reports whether this row is a soft-deleted marker rather than
// live data.
func (n *Node) IsTombstone() bool {
	return len(n.Entity) > 0 && n.Entity[0] == TombstonePrefix[0]
}

// signingMessage builds the canonical byte sequence a node's signature
// covers (§3.3): id ‖ cdate_le ‖ mdate_le ‖ entity ‖ json? ‖ binary? ‖ verifying_key.
func (n *Node) signingMessage() []byte {
	var cdate, mdate [8]byte
	binary.LittleEndian.PutUint64(cdate[:], uint64(n.CDate))
	binary.LittleEndian.PutUint64(mdate[:], uint64(n.MDate))
	return concatBytes(n.ID.Bytes(), cdate[:], mdate[:], []byte(n.Entity), n.JSON, n.Binary, n.VerifyingKey[:])
}

// Sign stamps Signature and VerifyingKey from sk over the node's current
// field values. Callers must call Sign again after mutating any signed
// field.
func (n *Node) Sign(sk *identity.SigningKey) {
	n.VerifyingKey = sk.Public()
	n.Signature = sk.Sign(n.signingMessage())
}

// Verify reports whether Signature is a valid signature over the node's
// current fields by VerifyingKey.
func (n *Node) Verify() bool {
	return identity.Verify(n.VerifyingKey, n.signingMessage(), n.Signature[:])
}

// Hash returns the node's content digest, used by the daily-log rolling
// hash (§3.6) and by peer-to-peer row comparisons during sync.
func (n *Node) Hash() [identity.HashSize]byte {
	return identity.Hash(n.signingMessage(), n.Signature[:])
}

// DecodeJSON unmarshals the node's JSON payload into v.
func (n *Node) DecodeJSON(v interface{}) error {
	if n.JSON == nil {
		return nil
	}
	return json.Unmarshal(n.JSON, v)
}

func concatBytes(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
