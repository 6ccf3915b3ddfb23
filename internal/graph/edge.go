package graph

import (
	"encoding/binary"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// Edge is one row of the _edge table: a directed, labelled link from a
// source node's field to a destination node (§3.4). src_entity and label
// are stored as the model's stable short_names rather than strings, so
// edges stay compact and renaming an entity or field never invalidates them.
type Edge struct {
	Src          uid.Uid
	SrcEntity    int // short_name of the entity owning the referencing field
	Label        int // short_name of the referencing field
	Dest         uid.Uid
	CDate        int64
	VerifyingKey identity.VerifyingKey
	Signature    [identity.SignatureSize]byte
}

func (e *Edge) signingMessage() []byte {
	var srcEntity, label, cdate [8]byte
	binary.LittleEndian.PutUint64(srcEntity[:], uint64(e.SrcEntity))
	binary.LittleEndian.PutUint64(label[:], uint64(e.Label))
	binary.LittleEndian.PutUint64(cdate[:], uint64(e.CDate))
	return concatBytes(e.Src.Bytes(), srcEntity[:], label[:], e.Dest.Bytes(), cdate[:], e.VerifyingKey[:])
}

// Sign stamps Signature and VerifyingKey from sk over the edge's fields.
func (e *Edge) Sign(sk *identity.SigningKey) {
	e.VerifyingKey = sk.Public()
	e.Signature = sk.Sign(e.signingMessage())
}

// Verify reports whether Signature is valid over the edge's current fields.
func (e *Edge) Verify() bool {
	return identity.Verify(e.VerifyingKey, e.signingMessage(), e.Signature[:])
}

// Hash returns the edge's content digest for daily-log and sync comparisons.
func (e *Edge) Hash() [identity.HashSize]byte {
	return identity.Hash(e.signingMessage(), e.Signature[:])
}

// NodeDeletionLogEntry records a soft-deleted node for replication (§4.4).
type NodeDeletionLogEntry struct {
	Room         uid.Uid
	ID           uid.Uid
	Entity       string
	DeletionDate int64
	VerifyingKey identity.VerifyingKey
	Signature    [identity.SignatureSize]byte
}

func (d *NodeDeletionLogEntry) signingMessage() []byte {
	var date [8]byte
	binary.LittleEndian.PutUint64(date[:], uint64(d.DeletionDate))
	return concatBytes(d.Room.Bytes(), d.ID.Bytes(), []byte(d.Entity), date[:], d.VerifyingKey[:])
}

// Sign stamps Signature and VerifyingKey over the deletion log entry.
func (d *NodeDeletionLogEntry) Sign(sk *identity.SigningKey) {
	d.VerifyingKey = sk.Public()
	d.Signature = sk.Sign(d.signingMessage())
}

// Verify reports whether Signature is valid.
func (d *NodeDeletionLogEntry) Verify() bool {
	return identity.Verify(d.VerifyingKey, d.signingMessage(), d.Signature[:])
}

// EdgeDeletionLogEntry records a removed edge for replication (§4.4).
type EdgeDeletionLogEntry struct {
	Room         uid.Uid
	SrcEntity    int
	Src          uid.Uid
	Dest         uid.Uid
	Label        int
	DeletionDate int64
	VerifyingKey identity.VerifyingKey
	Signature    [identity.SignatureSize]byte
}

func (d *EdgeDeletionLogEntry) signingMessage() []byte {
	var srcEntity, label, date [8]byte
	binary.LittleEndian.PutUint64(srcEntity[:], uint64(d.SrcEntity))
	binary.LittleEndian.PutUint64(label[:], uint64(d.Label))
	binary.LittleEndian.PutUint64(date[:], uint64(d.DeletionDate))
	return concatBytes(d.Room.Bytes(), d.Src.Bytes(), srcEntity[:], label[:], d.Dest.Bytes(), date[:], d.VerifyingKey[:])
}

// Sign stamps Signature and VerifyingKey over the deletion log entry.
func (d *EdgeDeletionLogEntry) Sign(sk *identity.SigningKey) {
	d.VerifyingKey = sk.Public()
	d.Signature = sk.Sign(d.signingMessage())
}

// Verify reports whether Signature is valid.
func (d *EdgeDeletionLogEntry) Verify() bool {
	return identity.Verify(d.VerifyingKey, d.signingMessage(), d.Signature[:])
}
