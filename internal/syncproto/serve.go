package syncproto

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discretlib/discret/internal/dailylog"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/query"
	"github.com/discretlib/discret/internal/transport"
	"github.com/discretlib/discret/internal/uid"
)

// serveQueries is the responder side of the session: it reads every
// incoming Query and answers it from local state. It runs for the life of
// the session, concurrently with whatever queries this side issues as
// initiator.
func (s *Session) serveQueries(ctx context.Context) {
	defer s.serveWG.Done()
	for {
		q, err := s.conn.RecvQuery()
		if err != nil {
			return
		}
		go s.handleQuery(ctx, q)
	}
}

// handleQuery dispatches one incoming Query by Op and writes its Answer.
// A handler error is reported back to the caller as Answer.Err rather than
// dropping the connection, so one bad request does not kill the session.
func (s *Session) handleQuery(ctx context.Context, q transport.Query) {
	payload, err := s.dispatch(ctx, Op(q.Op), q.Payload)
	answer := transport.Answer{ID: q.ID}
	if err != nil {
		answer.Err = err.Error()
	} else {
		answer.Payload = payload
	}
	s.conn.SendAnswer(answer)
}

func (s *Session) dispatch(ctx context.Context, op Op, payload json.RawMessage) (json.RawMessage, error) {
	switch op {
	case OpRoomList:
		return s.answerRoomList(ctx)
	case OpRoomDefinition:
		return s.answerRoomDefinition(ctx, payload)
	case OpRoomNode:
		return s.answerRoomNode(ctx, payload)
	case OpPeersForRoom:
		return s.answerPeersForRoom(ctx, payload)
	case OpRoomLog:
		return s.answerRoomLog(ctx, payload)
	case OpNodeDeletionLog:
		return s.answerNodeDeletionLog(ctx, payload)
	case OpEdgeDeletionLog:
		return s.answerEdgeDeletionLog(ctx, payload)
	case OpNodeIdentifiers:
		return s.answerNodeIdentifiers(ctx, payload)
	case OpNodes:
		return s.answerNodes(ctx, payload)
	case OpEdgeRoomLog:
		return s.answerEdgeRoomLog(ctx, payload)
	case OpEdgeIdentifiers:
		return s.answerEdgeIdentifiers(ctx, payload)
	case OpEdges:
		return s.answerEdges(ctx, payload)
	default:
		return nil, fmt.Errorf("syncproto: unknown op %q", op)
	}
}

func (s *Session) answerRoomList(ctx context.Context) (json.RawMessage, error) {
	rooms, err := s.node.Store.RoomIDs(ctx)
	if err != nil {
		return nil, err
	}
	resp := RoomListResponse{Rooms: make([]string, len(rooms))}
	for i, r := range rooms {
		resp.Rooms[i] = r.String()
	}
	return json.Marshal(resp)
}

func (s *Session) answerRoomDefinition(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	rollup, err := dailylog.RoomRollupOf(ctx, s.node.Store.Engine(), room)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RoomDefinitionResponse{
		RoomID:       room.String(),
		RoomDefDate:  rollup.RoomDefDate,
		LastDataDate: rollup.LastDataDate,
		DailyHash:    rollup.DailyHash[:],
		HistoryHash:  rollup.HistoryHash[:],
	})
}

func (s *Session) answerRoomNode(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	var nodes []NodeWire
	for _, entity := range []string{"Room", "Authorisation", "EntityRight", "UserAuth"} {
		rows, err := s.node.Store.NodesByRoomEntity(ctx, room, entity)
		if err != nil {
			return nil, err
		}
		for _, n := range rows {
			nodes = append(nodes, toNodeWire(n))
		}
	}
	return json.Marshal(RoomNodeResponse{Nodes: nodes})
}

func (s *Session) answerPeersForRoom(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	r, err := query.LoadRoom(ctx, s.node.Store, room)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var peers []string
	for _, a := range r.Admins {
		k := a.VerifyingKey.String()
		if !seen[k] {
			seen[k] = true
			peers = append(peers, k)
		}
	}
	for _, auth := range r.Auths {
		for _, u := range auth.Users {
			k := u.VerifyingKey.String()
			if !seen[k] {
				seen[k] = true
				peers = append(peers, k)
			}
		}
	}
	return json.Marshal(PeersForRoomResponse{Peers: peers})
}

func (s *Session) answerRoomLog(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	entries, err := s.node.Store.Engine().RoomDailyHashes(ctx, room.Bytes())
	if err != nil {
		return nil, err
	}
	out := make([]RoomLogEntry, len(entries))
	for i, e := range entries {
		out[i] = RoomLogEntry{Entity: e.Entity, Day: e.Day, Hash: e.Hash}
	}
	return json.Marshal(RoomLogResponse{Entries: out})
}

func (s *Session) answerNodeDeletionLog(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	entries, err := s.node.Store.NodeDeletionLog(ctx, room)
	if err != nil {
		return nil, err
	}
	out := make([]NodeDeletionWire, len(entries))
	for i, e := range entries {
		out[i] = toNodeDeletionWire(e)
	}
	return json.Marshal(NodeDeletionLogResponse{Entries: out})
}

func (s *Session) answerEdgeDeletionLog(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	entries, err := s.node.Store.EdgeDeletionLog(ctx, room)
	if err != nil {
		return nil, err
	}
	out := make([]EdgeDeletionWire, len(entries))
	for i, e := range entries {
		out[i] = toEdgeDeletionWire(e)
	}
	return json.Marshal(EdgeDeletionLogResponse{Entries: out})
}

func (s *Session) answerNodeIdentifiers(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	nodes, err := s.node.Store.NodesInBucket(ctx, room, req.Entity, req.Day)
	if err != nil {
		return nil, err
	}
	ids := make([]NodeIdentifier, len(nodes))
	for i, n := range nodes {
		ids[i] = NodeIdentifier{ID: n.ID.String(), MDate: n.MDate}
	}
	return json.Marshal(NodeIdentifiersResponse{Identifiers: ids})
}

func (s *Session) answerNodes(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req NodesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	if len(req.IDs) > MaxNodeBatch {
		return nil, fmt.Errorf("syncproto: batch of %d exceeds MaxNodeBatch", len(req.IDs))
	}
	var wires []NodeWire
	for _, idStr := range req.IDs {
		id, err := uid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		n, err := s.node.Store.GetNode(ctx, req.Entity, id)
		if err == graph.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		wires = append(wires, toNodeWire(n))
	}
	return json.Marshal(NodesResponse{Nodes: wires})
}

func (s *Session) answerEdgeRoomLog(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req BucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	entries, err := s.node.Store.Engine().RoomEdgeDailyHashes(ctx, room.Bytes())
	if err != nil {
		return nil, err
	}
	out := make([]EdgeLogEntry, len(entries))
	for i, e := range entries {
		out[i] = EdgeLogEntry{Label: e.Label, Day: e.Day, Hash: e.Hash}
	}
	return json.Marshal(EdgeRoomLogResponse{Entries: out})
}

func (s *Session) answerEdgeIdentifiers(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req EdgeBucketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	room, err := uid.Parse(req.Room)
	if err != nil {
		return nil, err
	}
	edges, err := s.node.Store.EdgesInBucket(ctx, room, req.Label, req.Day)
	if err != nil {
		return nil, err
	}
	ids := make([]EdgeIdentifier, len(edges))
	for i, e := range edges {
		ids[i] = EdgeIdentifier{Src: e.Src.String(), Dest: e.Dest.String()}
	}
	return json.Marshal(EdgeIdentifiersResponse{Identifiers: ids})
}

func (s *Session) answerEdges(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req EdgesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	if len(req.Pairs) > MaxNodeBatch {
		return nil, fmt.Errorf("syncproto: batch of %d exceeds MaxNodeBatch", len(req.Pairs))
	}
	pairs := make([]graph.EdgePair, 0, len(req.Pairs))
	for _, p := range req.Pairs {
		src, err := uid.Parse(p.Src)
		if err != nil {
			return nil, err
		}
		dest, err := uid.Parse(p.Dest)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, graph.EdgePair{Src: src, Dest: dest})
	}
	edges, err := s.node.Store.EdgesByPairs(ctx, req.Label, pairs)
	if err != nil {
		return nil, err
	}
	wires := make([]EdgeWire, len(edges))
	for i, e := range edges {
		wires[i] = toEdgeWire(e)
	}
	return json.Marshal(EdgesResponse{Edges: wires})
}
