package query

import (
	"context"
	"fmt"

	"github.com/discretlib/discret/internal/authz"
	"github.com/discretlib/discret/internal/dailylog"
	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/model"
	"github.com/discretlib/discret/internal/uid"
)

// Executor runs mutations end to end: build, default, authorise, sign and
// commit (§4.4), wiring in the daily-log and event-bus side effects of the
// commit phase.
type Executor struct {
	Model    *model.DataModel
	Store    *graph.Store
	DailyLog *dailylog.Index
	Bus      *events.Bus
	Identity *identity.SigningKey
}

// Mutate parses and fully executes a mutation, returning nil on success.
// Any authorisation failure or build-phase error leaves the
// store untouched: nothing is submitted until every check has passed.
func (e *Executor) Mutate(ctx context.Context, src string, params map[string]interface{}, now int64) error {
	m, err := ParseMutation(src, params)
	if err != nil {
		return err
	}
	peer := e.Identity.Public()

	result, err := Build(ctx, e.Model, e.Store, peer, now, m)
	if err != nil {
		return err
	}

	if err := e.authorise(ctx, peer, now, result); err != nil {
		return err
	}

	for _, n := range result.nodes {
		n.Sign(e.Identity)
	}
	for _, ed := range result.edges {
		ed.Sign(e.Identity)
	}

	batch := graph.WriteBatch{Nodes: result.nodes, Edges: result.edges}
	if err := e.Store.Submit(ctx, batch); err != nil {
		return err
	}

	e.afterCommit(result, now)
	return nil
}

// authorise enforces §4.5's full admin rule on every (room, entity, op)
// triple the build phase gathered, rolling back (by simply not committing
// — the caller never called Submit yet) on the first failure. Room,
// Authorisation, EntityRight and UserAuth mutations go through
// CheckRoomMutation, since only admins (and, for UserAuth, an
// authorisation's own user_admins) may touch the room's structure; every
// other entity is gated by the ordinary Allowed grant. Any mutation that
// proposes a new admin-list entry is additionally checked against §4.2's
// last-enabled-admin and no-self-demotion invariants.
func (e *Executor) authorise(ctx context.Context, peer identity.VerifyingKey, now int64, result *buildResult) error {
	rooms := map[string]*authz.Room{}
	loadRoom := func(id uid.Uid) (*authz.Room, error) {
		key := id.String()
		if room, ok := rooms[key]; ok {
			return room, nil
		}
		room, err := LoadRoom(ctx, e.Store, id)
		if err != nil {
			return nil, err
		}
		rooms[key] = room
		return room, nil
	}

	for _, c := range result.checks {
		room, err := loadRoom(c.Room)
		if err != nil {
			return err
		}
		switch c.Entity {
		case "Room", "Authorisation", "EntityRight":
			if err := room.CheckRoomMutation(peer, c.Entity, nil, now); err != nil {
				return err
			}
		case "UserAuth":
			var auth *authz.Authorisation
			if c.Auth != uid.Nil {
				auth = room.Auths[c.Auth]
			}
			if err := room.CheckRoomMutation(peer, "UserAuth", auth, now); err != nil {
				return err
			}
		default:
			if !room.Allowed(peer, c.Entity, c.Op, now) {
				return fmt.Errorf("%w: peer may not %v entity %s in room %s", authz.ErrUnauthorised, c.Op, c.Entity, c.Room)
			}
		}
	}

	for _, u := range result.adminUpdates {
		room, err := loadRoom(u.Room)
		if err != nil {
			return err
		}
		proposed := append(append([]authz.UserAuthEntry{}, room.Admins...), u.Entry)
		if err := room.CheckAdminInvariants(peer, proposed, now); err != nil {
			return err
		}
	}
	return nil
}

// afterCommit marks affected daily-log buckets dirty and publishes a
// RoomModified event per touched room (§4.4 commit phase).
func (e *Executor) afterCommit(result *buildResult, now int64) {
	seenRooms := map[string]bool{}
	for _, n := range result.nodes {
		if e.DailyLog != nil {
			e.DailyLog.Mark(n.RoomID, n.Entity, now)
		}
		key := n.RoomID.String()
		if e.Bus != nil && !seenRooms[key] {
			seenRooms[key] = true
			e.Bus.Publish(events.Event{
				Kind:        events.RoomModified,
				Room:        n.RoomID,
				Entity:      n.Entity,
				Time:        now,
				RoomSummary: fmt.Sprintf("%s updated", n.Entity),
			})
		}
	}
	if e.DailyLog != nil {
		for i, ed := range result.edges {
			e.DailyLog.MarkEdge(result.edgeRooms[i], ed.Label, ed.CDate)
		}
	}
}
