package events

import (
	"testing"
	"time"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

func TestInviteAcceptRoundTrip(t *testing.T) {
	inviter, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	room := uid.MustNew()
	expire := time.Now().Add(time.Hour)
	_, invite, err := CreateInvite(inviter, room, expire)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	accepterKey, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	allowed, err := AcceptInvite(invite, accepterKey.Public(), time.Now(), expire)
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if allowed.DefaultRoom != room {
		t.Fatal("accepted invite should carry the invited room")
	}
}

func TestInviteRejectsExpired(t *testing.T) {
	inviter, _ := identity.GenerateSigningKey()
	room := uid.MustNew()
	expire := time.Now().Add(-time.Hour)
	_, invite, err := CreateInvite(inviter, room, expire)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	accepterKey, _ := identity.GenerateSigningKey()
	if _, err := AcceptInvite(invite, accepterKey.Public(), time.Now(), expire); err != ErrInviteExpired {
		t.Fatalf("err = %v, want ErrInviteExpired", err)
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)
	defer cancel()
	b.Publish(Event{Kind: RoomModified})
	select {
	case ev := <-ch:
		if ev.Kind != RoomModified {
			t.Fatalf("event kind = %v, want RoomModified", ev.Kind)
		}
	default:
		t.Fatal("expected buffered event to be immediately available")
	}
}
