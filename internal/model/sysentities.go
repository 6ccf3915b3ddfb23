package model

// installSystemEntities populates the reserved "sys" namespace with the
// eight system entities spec.md §3.2 requires always be present: Room,
// Authorisation, UserAuth, EntityRight, Peer, AllowedPeer, Invite,
// OwnedInvite. Their fields use short_names in the system-reserved range
// (< FirstUserShortName) since they are part of the wire format itself,
// not user schema.
func installSystemEntities(dm *DataModel) {
	ns := dm.Namespaces[SysNamespace]

	room := newEntity("Room", 0)
	mustAdd(room, sysField("admins", 0, ArrayRef, "UserAuth"))
	mustAdd(room, sysField("authorisations", 1, ArrayRef, "Authorisation"))
	ns["Room"] = room

	auth := newEntity("Authorisation", 1)
	mustAdd(auth, sysField("rights", 0, ArrayRef, "EntityRight"))
	mustAdd(auth, sysField("users", 1, ArrayRef, "UserAuth"))
	mustAdd(auth, sysField("user_admin", 2, ArrayRef, "UserAuth"))
	ns["Authorisation"] = auth

	userAuth := newEntity("UserAuth", 2)
	mustAdd(userAuth, sysField("verifying_key", 0, Base64, ""))
	mustAdd(userAuth, sysField("date", 1, Integer, ""))
	mustAdd(userAuth, sysField("enabled", 2, Boolean, ""))
	ns["UserAuth"] = userAuth

	entityRight := newEntity("EntityRight", 3)
	mustAdd(entityRight, sysField("entity", 0, String, ""))
	mustAdd(entityRight, sysField("mutate_self", 1, Boolean, ""))
	mustAdd(entityRight, sysField("mutate_all", 2, Boolean, ""))
	mustAdd(entityRight, sysField("date", 3, Integer, ""))
	ns["EntityRight"] = entityRight

	peer := newEntity("Peer", 4)
	mustAdd(peer, sysField("verifying_key", 0, Base64, ""))
	mustAdd(peer, sysField("app_name", 1, String, ""))
	ns["Peer"] = peer

	allowedPeer := newEntity("AllowedPeer", 5)
	mustAdd(allowedPeer, sysField("verifying_key", 0, Base64, ""))
	mustAdd(allowedPeer, sysField("default_room", 1, Base64, ""))
	ns["AllowedPeer"] = allowedPeer

	invite := newEntity("Invite", 6)
	mustAdd(invite, sysField("default_room", 0, Base64, ""))
	mustAdd(invite, sysField("inviter_key", 1, Base64, ""))
	mustAdd(invite, sysField("exchange_public", 2, Base64, ""))
	mustAdd(invite, sysField("signature", 3, Base64, ""))
	ns["Invite"] = invite

	ownedInvite := newEntity("OwnedInvite", 7)
	mustAdd(ownedInvite, sysField("default_room", 0, Base64, ""))
	mustAdd(ownedInvite, sysField("exchange_private", 1, Base64, ""))
	mustAdd(ownedInvite, sysField("expire", 2, Integer, ""))
	ns["OwnedInvite"] = ownedInvite

	dm.nextShortName[SysNamespace] = 8
}

func sysField(name string, short int, t FieldType, ref string) *Field {
	return &Field{
		Name:      name,
		ShortName: short,
		Type:      t,
		RefEntity: ref,
		IsSystem:  true,
		Mutable:   true,
	}
}

func mustAdd(e *Entity, f *Field) {
	if err := e.AddField(f); err != nil {
		panic(err) // programmer error: system entity definitions are fixed at compile time
	}
}

// IsReservedKeyword reports whether name collides with one of the always
// present system entities — used by the parser to reject user schemas that
// redefine them outside the sys namespace is a no-op (sys is unwritable
// from user DSL) but redefining the same name in the default namespace is
// still confusing, so it is rejected too.
func IsReservedKeyword(name string) bool {
	switch name {
	case "Room", "Authorisation", "UserAuth", "EntityRight", "Peer", "AllowedPeer", "Invite", "OwnedInvite":
		return true
	default:
		return false
	}
}
