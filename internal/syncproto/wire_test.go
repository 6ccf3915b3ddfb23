package syncproto

import (
	"testing"

	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

func mustKey(t *testing.T) *identity.SigningKey {
	t.Helper()
	sk, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return sk
}

func TestNodeWireRoundTrip(t *testing.T) {
	sk := mustKey(t)
	n := &graph.Node{ID: uid.MustNew(), RoomID: uid.MustNew(), CDate: 1, MDate: 2, Entity: "Person", JSON: []byte(`{"name":"a"}`)}
	n.Sign(sk)

	got, err := fromNodeWire(toNodeWire(n))
	if err != nil {
		t.Fatalf("fromNodeWire: %v", err)
	}
	if got.ID != n.ID || got.Entity != n.Entity || got.MDate != n.MDate {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, n)
	}
	if !got.Verify() {
		t.Fatalf("round-tripped node does not verify")
	}
}

func TestEdgeWireRoundTrip(t *testing.T) {
	sk := mustKey(t)
	e := &graph.Edge{Src: uid.MustNew(), SrcEntity: 1, Label: 2, Dest: uid.MustNew(), CDate: 5}
	e.Sign(sk)

	got, err := fromEdgeWire(toEdgeWire(e))
	if err != nil {
		t.Fatalf("fromEdgeWire: %v", err)
	}
	if !got.Verify() {
		t.Fatalf("round-tripped edge does not verify")
	}
}

func TestBucketKeyDistinguishesEntityAndDay(t *testing.T) {
	if bucketKey("P", 1) == bucketKey("P", 2) {
		t.Fatal("different days produced the same bucket key")
	}
	if bucketKey("P", 1) == bucketKey("Q", 1) {
		t.Fatal("different entities produced the same bucket key")
	}
}
