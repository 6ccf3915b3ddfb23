package syncproto

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/discretlib/discret/internal/authz"
	"github.com/discretlib/discret/internal/dailylog"
	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/query"
	"github.com/discretlib/discret/internal/roomlock"
	"github.com/discretlib/discret/internal/uid"
)

// callDecode issues a query and unmarshals its answer payload into resp.
func (s *Session) callDecode(ctx context.Context, op Op, req interface{}, resp interface{}) error {
	a, err := s.call(ctx, op, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return json.Unmarshal(a.Payload, resp)
}

// SynchroniseAll runs §4.7's room-list phase: it asks the peer which rooms
// it holds, intersects that with the rooms this node also participates in,
// and synchronises each in turn. A failure on one room is logged and does
// not abort the others.
func (s *Session) SynchroniseAll(ctx context.Context) error {
	var listResp RoomListResponse
	if err := s.callDecode(ctx, OpRoomList, struct{}{}, &listResp); err != nil {
		return fmt.Errorf("syncproto: RoomList: %w", err)
	}
	localRooms, err := s.node.Store.RoomIDs(ctx)
	if err != nil {
		return err
	}
	local := make(map[string]uid.Uid, len(localRooms))
	for _, r := range localRooms {
		local[r.String()] = r
	}

	for _, remoteIDStr := range listResp.Rooms {
		room, ok := local[remoteIDStr]
		if !ok {
			continue
		}
		if err := s.SynchroniseRoom(ctx, room); err != nil {
			if s.node.Logger != nil {
				s.node.Logger.WithError(err).WithField("room", room.String()).Warn("room synchronisation failed")
			}
		}
	}
	return nil
}

// SynchroniseRoom runs the per-room synchronisation steps of §4.7: compare
// room definitions and merge, then compare daily-log buckets and pull
// whatever has diverged. The whole room is locked for the duration via
// internal/roomlock so two synchronisations never race on the same room.
func (s *Session) SynchroniseRoom(ctx context.Context, room uid.Uid) error {
	release, err := s.node.Locks.Lock(ctx, room)
	if err != nil {
		return fmt.Errorf("syncproto: lock room: %w", err)
	}
	defer release()

	if err := s.syncRoomDefinition(ctx, room); err != nil {
		return fmt.Errorf("syncproto: room definition: %w", err)
	}

	localRollup, err := dailylog.RoomRollupOf(ctx, s.node.Store.Engine(), room)
	if err != nil {
		return fmt.Errorf("syncproto: local rollup: %w", err)
	}
	var remoteDef RoomDefinitionResponse
	if err := s.callDecode(ctx, OpRoomDefinition, BucketRequest{Room: room.String()}, &remoteDef); err != nil {
		return fmt.Errorf("syncproto: RoomDefinition: %w", err)
	}

	if remoteDef.LastDataDate == 0 && localRollup.LastDataDate == 0 {
		return nil // both empty, nothing to do
	}
	if string(remoteDef.HistoryHash) == string(localRollup.HistoryHash[:]) {
		return nil // already in sync
	}

	if err := s.syncBuckets(ctx, room); err != nil {
		return fmt.Errorf("syncproto: buckets: %w", err)
	}
	if err := s.syncEdgeBuckets(ctx, room); err != nil {
		return fmt.Errorf("syncproto: edge buckets: %w", err)
	}
	if err := s.syncDeletionLogs(ctx, room); err != nil {
		return fmt.Errorf("syncproto: deletion logs: %w", err)
	}

	if s.node.Bus != nil {
		s.node.Bus.Publish(events.Event{Kind: events.RoomSynchronized, Peer: s.remoteKey, Room: room, Time: time.Now().UnixMilli()})
	}
	return nil
}

// syncRoomDefinition pulls the remote's Room/Authorisation node rows,
// verifies each one's signature and its signer's authority as of its own
// mdate (§4.5), and ingests whichever rows pass both checks. Since
// (id, entity, mdate) is the primary key, a row whose mdate is not newer
// than the locally held version is skipped rather than re-inserted, so
// resending a row already held locally is harmless.
func (s *Session) syncRoomDefinition(ctx context.Context, room uid.Uid) error {
	var resp RoomNodeResponse
	if err := s.callDecode(ctx, OpRoomNode, BucketRequest{Room: room.String()}, &resp); err != nil {
		return err
	}
	if len(resp.Nodes) == 0 {
		return nil
	}

	prior, err := query.LoadRoom(ctx, s.node.Store, room)
	if err != nil {
		return err
	}

	nodes := make([]*graph.Node, 0, len(resp.Nodes))
	verifiers := make([]roomlock.Verifier, 0, len(resp.Nodes))
	for _, w := range resp.Nodes {
		n, err := fromNodeWire(w)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
		verifiers = append(verifiers, n.Verify)
	}
	results := roomlock.VerifyAll(verifiers, s.node.SignatureWorkers)

	var toWrite []*graph.Node
	for i, n := range nodes {
		if !results[i] {
			continue
		}
		if n.Entity != "Room" && n.Entity != "Authorisation" {
			continue
		}
		if err := prior.CheckRoomMutation(n.VerifyingKey, n.Entity, nil, n.MDate); err != nil {
			continue
		}
		if err := validateRoomNode(prior, n); err != nil {
			continue
		}
		if have, err := s.node.Store.GetNode(ctx, n.Entity, n.ID); err == nil && have.MDate >= n.MDate {
			continue
		}
		toWrite = append(toWrite, n)
	}
	if len(toWrite) == 0 {
		return nil
	}
	if err := s.node.Store.Submit(ctx, graph.WriteBatch{Nodes: toWrite}); err != nil {
		return err
	}
	for _, n := range toWrite {
		if s.node.DailyLog != nil {
			s.node.DailyLog.Mark(room, n.Entity, n.MDate)
		}
	}
	return nil
}

// syncBuckets diffs each (entity, day) bucket's rolling hash against the
// remote's RoomLog, then pulls only the rows that actually diverged
// (§4.7 step 5). Tombstoned rows live in their own "-Entity" pseudo-bucket
// (internal/graph's TombstonePrefix), so this naturally also replicates
// deletions once their tombstone row has been daily-logged.
func (s *Session) syncBuckets(ctx context.Context, room uid.Uid) error {
	var remoteLog RoomLogResponse
	if err := s.callDecode(ctx, OpRoomLog, BucketRequest{Room: room.String()}, &remoteLog); err != nil {
		return err
	}
	localEntries, err := s.node.Store.Engine().RoomDailyHashes(ctx, room.Bytes())
	if err != nil {
		return err
	}
	localHash := make(map[string]string, len(localEntries))
	for _, e := range localEntries {
		localHash[bucketKey(e.Entity, e.Day)] = string(e.Hash)
	}

	for _, remote := range remoteLog.Entries {
		if localHash[bucketKey(remote.Entity, remote.Day)] == string(remote.Hash) {
			continue
		}
		if err := s.syncBucket(ctx, room, remote.Entity, remote.Day); err != nil {
			return err
		}
	}
	return nil
}

func bucketKey(entity string, day int64) string {
	return fmt.Sprintf("%s/%d", entity, day)
}

// syncBucket diffs one bucket's node identifiers against the local copy
// and pulls whichever rows are missing or outdated, in batches bounded by
// MaxNodeBatch (§4.7 step 5.c-d).
func (s *Session) syncBucket(ctx context.Context, room uid.Uid, entity string, day int64) error {
	var remoteIDs NodeIdentifiersResponse
	if err := s.callDecode(ctx, OpNodeIdentifiers, BucketRequest{Room: room.String(), Entity: entity, Day: day}, &remoteIDs); err != nil {
		return err
	}
	localNodes, err := s.node.Store.NodesInBucket(ctx, room, entity, day)
	if err != nil {
		return err
	}
	localMDate := make(map[string]int64, len(localNodes))
	for _, n := range localNodes {
		localMDate[n.ID.String()] = n.MDate
	}

	var want []string
	for _, ident := range remoteIDs.Identifiers {
		if have, ok := localMDate[ident.ID]; !ok || ident.MDate > have {
			want = append(want, ident.ID)
		}
	}
	for start := 0; start < len(want); start += MaxNodeBatch {
		end := start + MaxNodeBatch
		if end > len(want) {
			end = len(want)
		}
		if err := s.pullNodes(ctx, room, entity, want[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) pullNodes(ctx context.Context, room uid.Uid, entity string, ids []string) error {
	var resp NodesResponse
	if err := s.callDecode(ctx, OpNodes, NodesRequest{Room: room.String(), Entity: entity, IDs: ids}, &resp); err != nil {
		return err
	}
	nodes := make([]*graph.Node, 0, len(resp.Nodes))
	verifiers := make([]roomlock.Verifier, 0, len(resp.Nodes))
	for _, w := range resp.Nodes {
		n, err := fromNodeWire(w)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
		verifiers = append(verifiers, n.Verify)
	}
	results := roomlock.VerifyAll(verifiers, s.node.SignatureWorkers)

	var toWrite []*graph.Node
	for i, n := range nodes {
		if results[i] {
			toWrite = append(toWrite, n)
		}
	}
	if len(toWrite) == 0 {
		return nil
	}
	if err := s.node.Store.Submit(ctx, graph.WriteBatch{Nodes: toWrite}); err != nil {
		return err
	}
	for _, n := range toWrite {
		if s.node.DailyLog != nil {
			s.node.DailyLog.Mark(room, n.Entity, n.MDate)
		}
	}
	return nil
}

// syncEdgeBuckets is syncBuckets' edge-side counterpart: it diffs each
// (label, day) edge bucket's rolling hash against the remote's
// EdgeRoomLog, then pulls only the buckets that diverged. Edges bucket by
// field label rather than entity name, since an edge carries no entity
// string of its own (§3.4).
func (s *Session) syncEdgeBuckets(ctx context.Context, room uid.Uid) error {
	var remoteLog EdgeRoomLogResponse
	if err := s.callDecode(ctx, OpEdgeRoomLog, BucketRequest{Room: room.String()}, &remoteLog); err != nil {
		return err
	}
	localEntries, err := s.node.Store.Engine().RoomEdgeDailyHashes(ctx, room.Bytes())
	if err != nil {
		return err
	}
	localHash := make(map[string]string, len(localEntries))
	for _, e := range localEntries {
		localHash[edgeBucketKey(e.Label, e.Day)] = string(e.Hash)
	}

	for _, remote := range remoteLog.Entries {
		if localHash[edgeBucketKey(remote.Label, remote.Day)] == string(remote.Hash) {
			continue
		}
		if err := s.syncEdgeBucket(ctx, room, remote.Label, remote.Day); err != nil {
			return err
		}
	}
	return nil
}

func edgeBucketKey(label int, day int64) string {
	return fmt.Sprintf("%d/%d", label, day)
}

// syncEdgeBucket diffs one edge bucket's (src, dest) identifiers against
// the local copy and pulls whichever pairs are missing, then marks the
// bucket dirty again so the background recompute brings its own daily_hash
// in line with the rows it now holds (§4.6).
func (s *Session) syncEdgeBucket(ctx context.Context, room uid.Uid, label int, day int64) error {
	var remoteIDs EdgeIdentifiersResponse
	if err := s.callDecode(ctx, OpEdgeIdentifiers, EdgeBucketRequest{Room: room.String(), Label: label, Day: day}, &remoteIDs); err != nil {
		return err
	}
	localEdges, err := s.node.Store.EdgesInBucket(ctx, room, label, day)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(localEdges))
	for _, e := range localEdges {
		have[e.Src.String()+"/"+e.Dest.String()] = true
	}

	var want []EdgeIdentifier
	for _, ident := range remoteIDs.Identifiers {
		if !have[ident.Src+"/"+ident.Dest] {
			want = append(want, ident)
		}
	}
	for start := 0; start < len(want); start += MaxNodeBatch {
		end := start + MaxNodeBatch
		if end > len(want) {
			end = len(want)
		}
		if err := s.pullEdges(ctx, room, label, day, want[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) pullEdges(ctx context.Context, room uid.Uid, label int, day int64, pairs []EdgeIdentifier) error {
	var resp EdgesResponse
	if err := s.callDecode(ctx, OpEdges, EdgesRequest{Room: room.String(), Label: label, Pairs: pairs}, &resp); err != nil {
		return err
	}
	edges := make([]*graph.Edge, 0, len(resp.Edges))
	verifiers := make([]roomlock.Verifier, 0, len(resp.Edges))
	for _, w := range resp.Edges {
		e, err := fromEdgeWire(w)
		if err != nil {
			continue
		}
		edges = append(edges, e)
		verifiers = append(verifiers, e.Verify)
	}
	results := roomlock.VerifyAll(verifiers, s.node.SignatureWorkers)

	var toWrite []*graph.Edge
	for i, e := range edges {
		if results[i] {
			toWrite = append(toWrite, e)
		}
	}
	if len(toWrite) == 0 {
		return nil
	}
	if err := s.node.Store.Submit(ctx, graph.WriteBatch{Edges: toWrite}); err != nil {
		return err
	}
	if s.node.DailyLog != nil {
		for _, e := range toWrite {
			s.node.DailyLog.MarkEdge(room, e.Label, e.CDate)
		}
	}
	return nil
}

// syncDeletionLogs pulls the remote's node/edge deletion logs, verifies
// every entry, and records the verified ones locally so the fact of the
// deletion keeps replicating outward to any further peer (§4.4).
func (s *Session) syncDeletionLogs(ctx context.Context, room uid.Uid) error {
	var nodeLog NodeDeletionLogResponse
	if err := s.callDecode(ctx, OpNodeDeletionLog, BucketRequest{Room: room.String()}, &nodeLog); err != nil {
		return err
	}
	if err := s.applyNodeDeletions(ctx, nodeLog.Entries); err != nil {
		return err
	}

	var edgeLog EdgeDeletionLogResponse
	if err := s.callDecode(ctx, OpEdgeDeletionLog, BucketRequest{Room: room.String()}, &edgeLog); err != nil {
		return err
	}
	return s.applyEdgeDeletions(ctx, edgeLog.Entries)
}

func (s *Session) applyNodeDeletions(ctx context.Context, wires []NodeDeletionWire) error {
	entries := make([]*graph.NodeDeletionLogEntry, 0, len(wires))
	verifiers := make([]roomlock.Verifier, 0, len(wires))
	for _, w := range wires {
		d, err := fromNodeDeletionWire(w)
		if err != nil {
			continue
		}
		entries = append(entries, d)
		verifiers = append(verifiers, d.Verify)
	}
	results := roomlock.VerifyAll(verifiers, s.node.SignatureWorkers)
	var toWrite []*graph.NodeDeletionLogEntry
	for i, d := range entries {
		if results[i] {
			toWrite = append(toWrite, d)
		}
	}
	if len(toWrite) == 0 {
		return nil
	}
	return s.node.Store.Submit(ctx, graph.WriteBatch{NodeDeletes: toWrite})
}

func (s *Session) applyEdgeDeletions(ctx context.Context, wires []EdgeDeletionWire) error {
	entries := make([]*graph.EdgeDeletionLogEntry, 0, len(wires))
	verifiers := make([]roomlock.Verifier, 0, len(wires))
	for _, w := range wires {
		d, err := fromEdgeDeletionWire(w)
		if err != nil {
			continue
		}
		entries = append(entries, d)
		verifiers = append(verifiers, d.Verify)
	}
	results := roomlock.VerifyAll(verifiers, s.node.SignatureWorkers)
	var toWrite []*graph.EdgeDeletionLogEntry
	for i, d := range entries {
		if results[i] {
			toWrite = append(toWrite, d)
		}
	}
	if len(toWrite) == 0 {
		return nil
	}
	return s.node.Store.Submit(ctx, graph.WriteBatch{EdgeDeletes: toWrite})
}

// roomNodeJSON decodes the admin/user/right entries a wire Room or
// Authorisation node's JSON payload embeds, mirroring internal/query's
// roomloader so the two paths parse the same shape.
type roomNodeJSON struct {
	Admins    []userAuthWire    `json:"admins"`
	Users     []userAuthWire    `json:"users"`
	UserAdmin []userAuthWire    `json:"user_admin"`
	Rights    []entityRightWire `json:"rights"`
}

type userAuthWire struct {
	VerifyingKey string `json:"verifying_key"`
	Date         int64  `json:"date"`
	Enabled      bool   `json:"enabled"`
}

type entityRightWire struct {
	Entity     string `json:"entity"`
	MutateSelf bool   `json:"mutate_self"`
	MutateAll  bool   `json:"mutate_all"`
	Date       int64  `json:"date"`
}

func (w userAuthWire) entry() (authz.UserAuthEntry, error) {
	vk, err := identity.ParseVerifyingKey(w.VerifyingKey)
	if err != nil {
		return authz.UserAuthEntry{}, err
	}
	return authz.UserAuthEntry{VerifyingKey: vk, Date: w.Date, Enabled: w.Enabled}, nil
}

// validateRoomNode enforces §4.2/§4.5 on every admin/user/right change a
// replicated Room or Authorisation node carries: CheckRoomMutation already
// gates whether the signer may touch the node at all, but a conformant
// admin could still ingest a node whose individual entries were never
// authorised at their own date (§4.5's per-entry rule), so each one is
// re-checked against prior via ValidateIngestedEntry/ValidateIngestedRight.
func validateRoomNode(prior *authz.Room, n *graph.Node) error {
	var payload roomNodeJSON
	if err := n.DecodeJSON(&payload); err != nil {
		return err
	}
	for _, w := range payload.Admins {
		entry, err := w.entry()
		if err != nil {
			continue
		}
		if err := authz.ValidateIngestedEntry(prior, n.VerifyingKey, "UserAuth", nil, entry); err != nil {
			return err
		}
	}
	if n.Entity != "Authorisation" {
		return nil
	}
	auth := prior.Auths[n.ID]
	for _, w := range append(append([]userAuthWire{}, payload.Users...), payload.UserAdmin...) {
		entry, err := w.entry()
		if err != nil {
			continue
		}
		if err := authz.ValidateIngestedEntry(prior, n.VerifyingKey, "UserAuth", auth, entry); err != nil {
			return err
		}
	}
	for _, rw := range payload.Rights {
		right := authz.EntityRight{Entity: rw.Entity, MutateSelf: rw.MutateSelf, MutateAll: rw.MutateAll, Date: rw.Date}
		if err := authz.ValidateIngestedRight(prior, n.VerifyingKey, right); err != nil {
			return err
		}
	}
	return nil
}
