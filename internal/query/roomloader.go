package query

import (
	"context"
	"fmt"

	"github.com/discretlib/discret/internal/authz"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// LoadRoom reconstructs an in-memory authz.Room from its backing Room,
// Authorisation, EntityRight and UserAuth nodes (§4.5). It is re-run on
// demand rather than cached indefinitely, since any of those entities may
// be mutated or replicated in at any time.
func LoadRoom(ctx context.Context, store *graph.Store, room uid.Uid) (*authz.Room, error) {
	r := authz.NewRoom(room)

	roomNodes, err := store.NodesByRoomEntity(ctx, room, "Room")
	if err != nil {
		return nil, fmt.Errorf("query: load Room nodes: %w", err)
	}
	for _, n := range roomNodes {
		var payload struct {
			Admins []userAuthJSON `json:"admins"`
		}
		if err := n.DecodeJSON(&payload); err != nil {
			return nil, fmt.Errorf("query: decode Room node: %w", err)
		}
		if n.MDate > r.MDate {
			r.MDate = n.MDate
		}
		r.Admins = append(r.Admins, toUserAuthEntries(payload.Admins)...)
	}

	authNodes, err := store.NodesByRoomEntity(ctx, room, "Authorisation")
	if err != nil {
		return nil, fmt.Errorf("query: load Authorisation nodes: %w", err)
	}
	for _, n := range authNodes {
		var payload struct {
			Users      []userAuthJSON `json:"users"`
			UserAdmin  []userAuthJSON `json:"user_admin"`
			Rights     []entityRightJSON `json:"rights"`
		}
		if err := n.DecodeJSON(&payload); err != nil {
			return nil, fmt.Errorf("query: decode Authorisation node: %w", err)
		}
		r.Auths[n.ID] = &authz.Authorisation{
			ID:         n.ID,
			MDate:      n.MDate,
			Rights:     toEntityRights(payload.Rights),
			Users:      toUserAuthEntries(payload.Users),
			UserAdmins: toUserAuthEntries(payload.UserAdmin),
		}
	}

	return r, nil
}

type userAuthJSON struct {
	VerifyingKey string `json:"verifying_key"`
	Date         int64  `json:"date"`
	Enabled      bool   `json:"enabled"`
}

type entityRightJSON struct {
	Entity     string `json:"entity"`
	MutateSelf bool   `json:"mutate_self"`
	MutateAll  bool   `json:"mutate_all"`
	Date       int64  `json:"date"`
}

func toUserAuthEntries(in []userAuthJSON) []authz.UserAuthEntry {
	out := make([]authz.UserAuthEntry, 0, len(in))
	for _, e := range in {
		vk, err := identity.ParseVerifyingKey(e.VerifyingKey)
		if err != nil {
			continue
		}
		out = append(out, authz.UserAuthEntry{VerifyingKey: vk, Date: e.Date, Enabled: e.Enabled})
	}
	return out
}

func toEntityRights(in []entityRightJSON) []authz.EntityRight {
	out := make([]authz.EntityRight, 0, len(in))
	for _, r := range in {
		out = append(out, authz.EntityRight{Entity: r.Entity, MutateSelf: r.MutateSelf, MutateAll: r.MutateAll, Date: r.Date})
	}
	return out
}
