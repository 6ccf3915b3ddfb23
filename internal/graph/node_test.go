package graph

import (
	"testing"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

func mustSigningKey(t *testing.T) *identity.SigningKey {
	t.Helper()
	sk, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return sk
}

func TestNodeSignVerify(t *testing.T) {
	sk := mustSigningKey(t)
	id := uid.MustNew()
	n := &Node{ID: id, Entity: "Person", JSON: []byte(`{"name":"a"}`), CDate: 1, MDate: 1}
	n.Sign(sk)
	if !n.Verify() {
		t.Fatal("node signature should verify")
	}
	n.JSON = []byte(`{"name":"b"}`)
	if n.Verify() {
		t.Fatal("tampered node must fail verification")
	}
}

func TestNodeIsTombstone(t *testing.T) {
	n := &Node{Entity: TombstonePrefix + "Person"}
	if !n.IsTombstone() {
		t.Fatal("expected tombstone")
	}
	n2 := &Node{Entity: "Person"}
	if n2.IsTombstone() {
		t.Fatal("did not expect tombstone")
	}
}

func TestEdgeSignVerify(t *testing.T) {
	sk := mustSigningKey(t)
	e := &Edge{Src: uid.MustNew(), Dest: uid.MustNew(), SrcEntity: 1, Label: 32, CDate: 1}
	e.Sign(sk)
	if !e.Verify() {
		t.Fatal("edge signature should verify")
	}
	e.Dest = uid.MustNew()
	if e.Verify() {
		t.Fatal("tampered edge must fail verification")
	}
}

func TestNodeHashDeterministic(t *testing.T) {
	sk := mustSigningKey(t)
	n := &Node{ID: uid.MustNew(), Entity: "Person", JSON: []byte(`{}`), CDate: 1, MDate: 1}
	n.Sign(sk)
	h1 := n.Hash()
	h2 := n.Hash()
	if h1 != h2 {
		t.Fatal("Hash must be deterministic for identical content")
	}
}
