package authz

import (
	"fmt"

	"github.com/discretlib/discret/internal/identity"
)

// CheckRoomMutation enforces the admin rule on mutations to the Room entity
// tree itself (§4.5): only admins may mutate Room, Authorisation or
// EntityRight nodes; only admins or the authorisation's own user_admins may
// touch that authorisation's users.
func (r *Room) CheckRoomMutation(peer identity.VerifyingKey, entity string, auth *Authorisation, atTime int64) error {
	switch entity {
	case "Room", "Authorisation", "EntityRight":
		if !r.IsAdmin(peer, atTime) {
			return fmt.Errorf("%w: peer not an admin of room for entity %s", ErrUnauthorised, entity)
		}
		return nil
	case "UserAuth":
		if r.IsAdmin(peer, atTime) {
			return nil
		}
		if auth != nil && auth.CanAdminUsers(peer, atTime) {
			return nil
		}
		return fmt.Errorf("%w: peer may not administer users of this authorisation", ErrUnauthorised)
	default:
		return nil
	}
}

// CheckAdminInvariants enforces §4.2: a Room must keep at least one
// enabled admin, and an admin may never disable themselves.
func (r *Room) CheckAdminInvariants(actor identity.VerifyingKey, proposedAdmins []UserAuthEntry, atTime int64) error {
	next := &Room{ID: r.ID, Admins: proposedAdmins}
	if !next.HasEnabledAdmin(atTime) {
		return ErrLastAdmin
	}
	for _, e := range proposedAdmins {
		if e.VerifyingKey == actor && e.Date == atTime && !e.Enabled {
			if r.IsAdmin(actor, atTime-1) {
				return ErrSelfDemotion
			}
		}
	}
	return nil
}

// ValidateIngestedEntry checks that a single admin/user/user_admin entry
// arriving from a replicating peer would have been authorised by the room
// state AS OF ITS OWN mdate, per §4.5's room-node ingestion rule. prior is
// the Room reconstructed from state strictly before entry.Date.
func ValidateIngestedEntry(prior *Room, submitter identity.VerifyingKey, entity string, auth *Authorisation, entry UserAuthEntry) error {
	if err := prior.CheckRoomMutation(submitter, entity, auth, entry.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	return nil
}

// ValidateIngestedRight checks that a replicated EntityRight change would
// have been authorised by the room state as of its own date.
func ValidateIngestedRight(prior *Room, submitter identity.VerifyingKey, right EntityRight) error {
	if !prior.IsAdmin(submitter, right.Date) {
		return fmt.Errorf("%w: EntityRight for %s not signed by a room admin at its date", ErrInvalidNode, right.Entity)
	}
	return nil
}
