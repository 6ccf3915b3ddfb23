package query

import (
	"context"
	"fmt"

	"github.com/discretlib/discret/internal/authz"
	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/uid"
)

// Delete soft-deletes one node (handle.delete in §6.1): it checks
// authorisation the same way Mutate does, writes a tombstone version and a
// signed deletion log entry so the deletion itself replicates (§4.4), and
// runs the same daily-log/event-bus side effects as a committed mutation.
func (e *Executor) Delete(ctx context.Context, entity string, id uid.Uid, now int64) error {
	existing, err := e.Store.GetNode(ctx, entity, id)
	if err != nil {
		return err
	}
	peer := e.Identity.Public()
	op := authz.MutateAll
	if existing.VerifyingKey == peer {
		op = authz.MutateSelf
	}

	room := existing.RoomID
	r, err := LoadRoom(ctx, e.Store, room)
	if err != nil {
		return err
	}
	if !r.Allowed(peer, entity, op, now) {
		return fmt.Errorf("%w: peer may not delete entity %s in room %s", authz.ErrUnauthorised, entity, room)
	}

	tomb := &graph.Node{ID: id, RoomID: room, CDate: existing.CDate, MDate: now, Entity: graph.TombstonePrefix + entity}
	tomb.Sign(e.Identity)
	del := &graph.NodeDeletionLogEntry{Room: room, ID: id, Entity: entity, DeletionDate: now}
	del.Sign(e.Identity)

	batch := graph.WriteBatch{Nodes: []*graph.Node{tomb}, NodeDeletes: []*graph.NodeDeletionLogEntry{del}}
	if err := e.Store.Submit(ctx, batch); err != nil {
		return err
	}

	if e.DailyLog != nil {
		e.DailyLog.Mark(room, tomb.Entity, now)
	}
	if e.Bus != nil {
		e.Bus.Publish(events.Event{
			Kind:        events.RoomModified,
			Room:        room,
			Entity:      entity,
			Time:        now,
			RoomSummary: fmt.Sprintf("%s deleted", entity),
		})
	}
	return nil
}
