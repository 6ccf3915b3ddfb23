// Package authz implements Discret's room-scoped authorisation engine (C6):
// in-memory Room/Authorisation structures loaded from their backing nodes,
// and the time-ordered allowed() decision function of spec.md §4.5.
package authz

import (
	"sort"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// Operation names the two mutation rights an EntityRight grants.
type Operation int

const (
	MutateSelf Operation = iota
	MutateAll
)

// UserAuthEntry is one dated enable/disable record for a peer, mirroring
// the UserAuth system entity.
type UserAuthEntry struct {
	VerifyingKey identity.VerifyingKey
	Date         int64
	Enabled      bool
}

// EntityRight is one dated grant of mutate_self/mutate_all for an entity.
type EntityRight struct {
	Entity     string
	MutateSelf bool
	MutateAll  bool
	Date       int64
}

// Authorisation groups the rights, users and user-admins it governs.
type Authorisation struct {
	ID         uid.Uid
	MDate      int64
	Rights     []EntityRight   // ordered, oldest first
	Users      []UserAuthEntry // ordered, oldest first
	UserAdmins []UserAuthEntry
}

// Room is the in-memory authority for one room: its admin list and the
// authorisations it has defined.
type Room struct {
	ID     uid.Uid
	MDate  int64
	Admins []UserAuthEntry
	Auths  map[uid.Uid]*Authorisation
}

// NewRoom returns an empty Room ready to be populated by a loader
// (internal/query's ingestion path owns reading the backing nodes).
func NewRoom(id uid.Uid) *Room {
	return &Room{ID: id, Auths: make(map[uid.Uid]*Authorisation)}
}

// latestEnabled returns the most recent entry for key at or before at_time,
// or false if none exists or the most recent one is disabled.
func latestEnabled(entries []UserAuthEntry, key identity.VerifyingKey, atTime int64) bool {
	var best *UserAuthEntry
	for i := range entries {
		e := &entries[i]
		if e.VerifyingKey != key || e.Date > atTime {
			continue
		}
		if best == nil || e.Date > best.Date {
			best = e
		}
	}
	return best != nil && best.Enabled
}

// latestRight returns the most recent EntityRight for entity at or before
// at_time, if any.
func latestRight(rights []EntityRight, entity string, atTime int64) (EntityRight, bool) {
	var best *EntityRight
	for i := range rights {
		r := &rights[i]
		if r.Entity != entity || r.Date > atTime {
			continue
		}
		if best == nil || r.Date > best.Date {
			best = r
		}
	}
	if best == nil {
		return EntityRight{}, false
	}
	return *best, true
}

// IsAdmin reports whether peer is an enabled admin of the room at at_time.
func (r *Room) IsAdmin(peer identity.VerifyingKey, atTime int64) bool {
	return latestEnabled(r.Admins, peer, atTime)
}

// Allowed implements the decision function of §4.5: admins always pass;
// otherwise any authorisation the peer is an enabled user of is scanned for
// the most recent right covering entity, and op must be granted by it.
func (r *Room) Allowed(peer identity.VerifyingKey, entity string, op Operation, atTime int64) bool {
	if r.IsAdmin(peer, atTime) {
		return true
	}
	for _, auth := range sortedAuths(r.Auths) {
		if !latestEnabled(auth.Users, peer, atTime) {
			continue
		}
		right, ok := latestRight(auth.Rights, entity, atTime)
		if !ok {
			continue
		}
		if op == MutateSelf && right.MutateSelf {
			return true
		}
		if op == MutateAll && right.MutateAll {
			return true
		}
	}
	return false
}

// CanAdminUsers reports whether peer is enabled in auth's user_admins at
// at_time — the scope that may add/disable that authorisation's users (but
// not its rights), per §4.5.
func (a *Authorisation) CanAdminUsers(peer identity.VerifyingKey, atTime int64) bool {
	return latestEnabled(a.UserAdmins, peer, atTime)
}

// HasEnabledAdmin reports whether the room has at least one admin enabled
// at at_time — mutations that would leave none must be rejected (§4.2).
func (r *Room) HasEnabledAdmin(atTime int64) bool {
	seen := make(map[identity.VerifyingKey]bool)
	for _, e := range r.Admins {
		if e.Date <= atTime {
			seen[e.VerifyingKey] = e.Enabled
		}
	}
	for _, enabled := range seen {
		if enabled {
			return true
		}
	}
	return false
}

func sortedAuths(m map[uid.Uid]*Authorisation) []*Authorisation {
	out := make([]*Authorisation, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
