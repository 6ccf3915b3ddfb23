package discret

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/discretlib/discret/pkg/config"
)

func testKeyMaterial(t *testing.T) []byte {
	t.Helper()
	km := make([]byte, 32)
	for i := range km {
		km[i] = byte(i + 1)
	}
	return km
}

func openTestHandle(t *testing.T) *Handle {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "discret.db")
	h, err := New("{Person{name:String, age:Integer nullable}}", "discret-test", testKeyMaterial(t), dbPath, config.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNewAutoCreatesPrivateRoom(t *testing.T) {
	h := openTestHandle(t)
	if h.PrivateRoom() == "" {
		t.Fatal("expected a non-empty private room id")
	}
	rooms, err := h.Rooms(context.Background())
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	found := false
	for _, r := range rooms {
		if r == h.PrivateRoom() {
			found = true
		}
	}
	if !found {
		t.Fatalf("private room %s not found among %v", h.PrivateRoom(), rooms)
	}
}

func TestPrivateRoomPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "discret.db")
	km := testKeyMaterial(t)
	dsl := "{Person{name:String, age:Integer nullable}}"

	h1, err := New(dsl, "discret-test", km, dbPath, config.Config{})
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	room1 := h1.PrivateRoom()
	h1.Close()

	h2, err := New(dsl, "discret-test", km, dbPath, config.Config{})
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	defer h2.Close()
	if h2.PrivateRoom() != room1 {
		t.Fatalf("private room changed across reopen: %s != %s", h2.PrivateRoom(), room1)
	}
}

func TestMutateQueryDeleteRoundTrip(t *testing.T) {
	h := openTestHandle(t)

	room := h.PrivateRoom()
	mutation := `mutate { Person { room_id: $room, name: "alice", age: 30 } }`
	if err := h.Mutate(mutation, map[string]interface{}{"room": room}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	rows, err := h.Query(`{Person{name,age}}`, map[string]interface{}{"room": room})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	id, _ := rows[0]["id"].(string)
	if id == "" {
		t.Fatal("expected a non-empty id in the projected row")
	}

	if err := h.Delete(`{Person{name}}`, map[string]interface{}{"room": room, "id": id}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	rows, err = h.Query(`{Person{name,age}}`, map[string]interface{}{"room": room})
	if err != nil {
		t.Fatalf("Query after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows after delete, got %d", len(rows))
	}
}

func TestVerifyingKeyIsStable(t *testing.T) {
	h := openTestHandle(t)
	if h.VerifyingKey() == "" {
		t.Fatal("expected a non-empty verifying key")
	}
}

func TestInviteAndAcceptInviteRoundTrip(t *testing.T) {
	h := openTestHandle(t)
	invite, err := h.Invite(nil)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if len(invite) == 0 {
		t.Fatal("expected non-empty invite bytes")
	}
	if err := h.AcceptInvite(invite); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
}
