package authz

import (
	"testing"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

func vk(b byte) identity.VerifyingKey {
	var k identity.VerifyingKey
	k[0] = b
	return k
}

func TestAllowedAdminAlwaysGranted(t *testing.T) {
	r := NewRoom(uid.MustNew())
	admin := vk(1)
	r.Admins = []UserAuthEntry{{VerifyingKey: admin, Date: 0, Enabled: true}}
	if !r.Allowed(admin, "Anything", MutateAll, 100) {
		t.Fatal("admin should be allowed to mutate anything")
	}
}

func TestAllowedViaAuthorisationRight(t *testing.T) {
	r := NewRoom(uid.MustNew())
	user := vk(2)
	authID := uid.MustNew()
	r.Auths[authID] = &Authorisation{
		ID:     authID,
		Users:  []UserAuthEntry{{VerifyingKey: user, Date: 0, Enabled: true}},
		Rights: []EntityRight{{Entity: "Message", MutateSelf: true, MutateAll: false, Date: 0}},
	}
	if !r.Allowed(user, "Message", MutateSelf, 100) {
		t.Fatal("user should be allowed mutate_self on Message")
	}
	if r.Allowed(user, "Message", MutateAll, 100) {
		t.Fatal("user should not be allowed mutate_all on Message")
	}
}

func TestAllowedRespectsTimeOrdering(t *testing.T) {
	r := NewRoom(uid.MustNew())
	user := vk(3)
	authID := uid.MustNew()
	r.Auths[authID] = &Authorisation{
		ID:    authID,
		Users: []UserAuthEntry{{VerifyingKey: user, Date: 0, Enabled: true}, {VerifyingKey: user, Date: 50, Enabled: false}},
		Rights: []EntityRight{{Entity: "Message", MutateSelf: true, Date: 0}},
	}
	if !r.Allowed(user, "Message", MutateSelf, 10) {
		t.Fatal("user should be allowed before disable date")
	}
	if r.Allowed(user, "Message", MutateSelf, 60) {
		t.Fatal("user should be denied after disable date")
	}
}

func TestAllowedDeniesUnknownPeer(t *testing.T) {
	r := NewRoom(uid.MustNew())
	if r.Allowed(vk(9), "Message", MutateSelf, 0) {
		t.Fatal("unknown peer must be denied")
	}
}

func TestHasEnabledAdminAndLastAdminInvariant(t *testing.T) {
	r := NewRoom(uid.MustNew())
	admin := vk(1)
	r.Admins = []UserAuthEntry{{VerifyingKey: admin, Date: 0, Enabled: true}}

	proposed := []UserAuthEntry{{VerifyingKey: admin, Date: 0, Enabled: true}, {VerifyingKey: admin, Date: 10, Enabled: false}}
	if err := r.CheckAdminInvariants(admin, proposed, 10); err == nil {
		t.Fatal("expected ErrLastAdmin or ErrSelfDemotion")
	}
}

func TestCheckRoomMutationRequiresAdmin(t *testing.T) {
	r := NewRoom(uid.MustNew())
	admin := vk(1)
	r.Admins = []UserAuthEntry{{VerifyingKey: admin, Date: 0, Enabled: true}}
	nonAdmin := vk(2)
	if err := r.CheckRoomMutation(nonAdmin, "Room", nil, 100); err == nil {
		t.Fatal("non-admin must not be allowed to mutate Room")
	}
	if err := r.CheckRoomMutation(admin, "Room", nil, 100); err != nil {
		t.Fatalf("admin should be allowed to mutate Room: %v", err)
	}
}
