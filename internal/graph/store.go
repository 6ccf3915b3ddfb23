package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/discretlib/discret/internal/storage"
	"github.com/discretlib/discret/internal/uid"
)

// nodeColumns selects a _node row's fields in scan order, decompressing
// _json/_binary through the `decompress` UDF (§6.3) on the way out; a NULL
// column (tombstoned or archived rows) must stay NULL rather than error out
// of decompress on empty input. prefix is the table name or alias the
// columns are qualified with (e.g. "n." when joined against a subquery
// that also has an id/mdate column).
func nodeColumns(prefix string) string {
	return prefix + `id, ` + prefix + `room_id, ` + prefix + `cdate, ` + prefix + `mdate, ` + prefix + `_entity,
		CASE WHEN ` + prefix + `_json IS NULL THEN NULL ELSE decompress(` + prefix + `_json) END,
		CASE WHEN ` + prefix + `_binary IS NULL THEN NULL ELSE decompress(` + prefix + `_binary) END,
		` + prefix + `verifying_key, ` + prefix + `_signature`
}

// Store is the primitive node/edge store built atop a storage.Engine: plain
// get/exists/write/delete/archive operations plus a batching writer task
// (§4.1, §4.5). Higher layers (internal/query, internal/authz) never touch
// SQL directly; they go through Store.
type Store struct {
	engine *storage.Engine
	logger *zap.Logger
	writer *writerTask
}

// Open wraps an already-opened storage.Engine and starts its writer task.
func Open(engine *storage.Engine, logger *zap.Logger, batchSize int) *Store {
	s := &Store{engine: engine, logger: logger}
	s.writer = newWriterTask(engine, logger, batchSize)
	return s
}

// Close stops the background writer task. It does not close the underlying
// storage.Engine, which the caller owns.
func (s *Store) Close() {
	s.writer.stop()
}

// Engine exposes the underlying storage.Engine, used by internal/dailylog
// and internal/syncproto to run queries Store itself does not wrap.
func (s *Store) Engine() *storage.Engine { return s.engine }

// GetNode returns the current (highest mdate) live version of id, or
// ErrNotFound if none exists or the latest version is a tombstone.
//
// A delete rewrites _entity to TombstonePrefix+entity on the tombstone row
// rather than mutating the live row in place (§4.4), so the live and
// tombstone versions of one id sit under two different _entity values. The
// latest-version lookup must consider both, or a deleted node would keep
// resolving to its last live row forever.
func (s *Store) GetNode(ctx context.Context, entity string, id uid.Uid) (*Node, error) {
	row := s.engine.ReadConn().QueryRowContext(ctx, `
		SELECT `+nodeColumns("")+`
		FROM _node WHERE (_entity = ? OR _entity = ?) AND id = ? ORDER BY mdate DESC LIMIT 1`,
		entity, TombstonePrefix+entity, id.Bytes())
	n, err := scanNode(row)
	if err != nil {
		return nil, err
	}
	if n.IsTombstone() {
		return nil, ErrNotFound
	}
	return n, nil
}

// Exists reports whether a live (non-tombstone) version of id/entity exists.
func (s *Store) Exists(ctx context.Context, entity string, id uid.Uid) (bool, error) {
	_, err := s.GetNode(ctx, entity, id)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NodesByRoomEntity returns the current (highest mdate) live version of
// every node of entity within room, used to reconstruct in-memory
// authorisation state (internal/authz) from its backing nodes.
//
// The latest-version subquery groups by id across both _entity = entity and
// _entity = TombstonePrefix+entity, since a delete writes its tombstone
// under the prefixed name rather than updating the live row (§4.4, see
// GetNode). Without the union, a tombstoned id's now-stale live row would
// still win the MAX(mdate) grouping and be reported as current.
func (s *Store) NodesByRoomEntity(ctx context.Context, room uid.Uid, entity string) ([]*Node, error) {
	tombEntity := TombstonePrefix + entity
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT `+nodeColumns("n.")+`
		FROM _node n
		INNER JOIN (
			SELECT id, MAX(mdate) AS mdate FROM _node
			WHERE room_id = ? AND (_entity = ? OR _entity = ?) GROUP BY id
		) latest ON latest.id = n.id AND latest.mdate = n.mdate
		WHERE n.room_id = ? AND (n._entity = ? OR n._entity = ?)`,
		room.Bytes(), entity, tombEntity, room.Bytes(), entity, tombEntity)
	if err != nil {
		return nil, fmt.Errorf("graph: NodesByRoomEntity: %w", err)
	}
	defer rows.Close()
	var out []*Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, err
		}
		if n.IsTombstone() {
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RoomIDs returns every room this node holds a live Room node for, used by
// internal/syncproto to answer RoomList queries.
func (s *Store) RoomIDs(ctx context.Context) ([]uid.Uid, error) {
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT DISTINCT room_id FROM _node WHERE _entity = 'Room' AND room_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("graph: RoomIDs: %w", err)
	}
	defer rows.Close()
	var out []uid.Uid
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		id, err := uid.FromBytes(b)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EdgesFrom returns every live edge originating at src for the given field
// label.
func (s *Store) EdgesFrom(ctx context.Context, src uid.Uid, srcEntity, label int) ([]*Edge, error) {
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT src, src_entity, label, dest, cdate, verifying_key, signature
		FROM _edge WHERE src = ? AND src_entity = ? AND label = ?`, src.Bytes(), srcEntity, label)
	if err != nil {
		return nil, fmt.Errorf("graph: EdgesFrom: %w", err)
	}
	defer rows.Close()
	var out []*Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesTo returns every live edge pointing at dest, used to walk incoming
// references before archiving or deleting a node.
func (s *Store) EdgesTo(ctx context.Context, dest uid.Uid) ([]*Edge, error) {
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT src, src_entity, label, dest, cdate, verifying_key, signature
		FROM _edge WHERE dest = ?`, dest.Bytes())
	if err != nil {
		return nil, fmt.Errorf("graph: EdgesTo: %w", err)
	}
	defer rows.Close()
	var out []*Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchText runs a full-text query against _node_fts (§6.3) and returns
// the current live version of every matching node within room, in no
// particular rank order. A node's fts row is written once per version it
// ever had, so the same id can match more than once; results are
// deduplicated by id before the live rows are resolved.
func (s *Store) SearchText(ctx context.Context, room uid.Uid, entity, query string) ([]*Node, error) {
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT DISTINCT id FROM _node_fts WHERE content MATCH ?`, query)
	if err != nil {
		return nil, fmt.Errorf("graph: SearchText: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*Node
	for _, idStr := range ids {
		id, err := uid.Parse(idStr)
		if err != nil {
			continue
		}
		n, err := s.GetNode(ctx, entity, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n.RoomID == room {
			out = append(out, n)
		}
	}
	return out, nil
}

// Fingerprint returns a quick SQL-side content fingerprint of every live row
// of entity within room, via the `hash` aggregate UDF (§6.3). It folds rows
// in a different order (by id, not by mdate) and a different digest size
// than internal/dailylog's per-bucket rollup, so the two are independent
// cross-checks of the same underlying rows rather than interchangeable
// values — useful for a quick "did anything change" spot-check from
// cmd/discretctl without walking the full daily-log pipeline.
func (s *Store) Fingerprint(ctx context.Context, room uid.Uid, entity string) (string, error) {
	var out sql.NullString
	err := s.engine.ReadConn().QueryRowContext(ctx, `
		SELECT hash(id || ':' || mdate) FROM (
			SELECT id, mdate FROM _node
			WHERE room_id = ? AND _entity = ? ORDER BY id
		)`, room.Bytes(), entity).Scan(&out)
	if err != nil {
		return "", fmt.Errorf("graph: Fingerprint: %w", err)
	}
	return out.String, nil
}

// NodesInBucket returns the current live version of every node of entity
// within room whose mdate falls in the given day bucket (mdate/dayMillis),
// used by internal/syncproto to diff one daily-log bucket against a peer's.
func (s *Store) NodesInBucket(ctx context.Context, room uid.Uid, entity string, day int64) ([]*Node, error) {
	nodes, err := s.NodesByRoomEntity(ctx, room, entity)
	if err != nil {
		return nil, err
	}
	const dayMillis = 86400000
	out := nodes[:0]
	for _, n := range nodes {
		if n.MDate/dayMillis == day {
			out = append(out, n)
		}
	}
	return out, nil
}

// EdgesInBucket returns every edge of label within room whose cdate falls
// in the given day bucket (cdate/dayMillis), used by internal/syncproto to
// diff one edge daily-log bucket against a peer's. Edges carry no room_id
// of their own, so room scoping joins through the owning node's _node row.
func (s *Store) EdgesInBucket(ctx context.Context, room uid.Uid, label int, day int64) ([]*Edge, error) {
	const dayMillis = 86400000
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT e.src, e.src_entity, e.label, e.dest, e.cdate, e.verifying_key, e.signature
		FROM _edge e
		INNER JOIN _node n ON n.id = e.src
		WHERE n.room_id = ? AND e.label = ? AND e.cdate/? = ?`, room.Bytes(), label, dayMillis, day)
	if err != nil {
		return nil, fmt.Errorf("graph: EdgesInBucket: %w", err)
	}
	defer rows.Close()
	var out []*Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgePair identifies one edge by its (src, dest) endpoints within a label,
// used to request specific rows after a bucket diff.
type EdgePair struct {
	Src  uid.Uid
	Dest uid.Uid
}

// EdgesByPairs returns the current row for each (src, dest) pair under
// label that still exists; pairs with no matching live edge are silently
// omitted (the edge may have been deleted between the identifier list and
// the pull, in which case the deletion log carries the fact instead).
func (s *Store) EdgesByPairs(ctx context.Context, label int, pairs []EdgePair) ([]*Edge, error) {
	var out []*Edge
	for _, p := range pairs {
		row := s.engine.ReadConn().QueryRowContext(ctx, `
			SELECT src, src_entity, label, dest, cdate, verifying_key, signature
			FROM _edge WHERE src = ? AND label = ? AND dest = ?`, p.Src.Bytes(), label, p.Dest.Bytes())
		e, err := scanEdgeRow(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("graph: EdgesByPairs: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// NodeDeletionLog returns every node deletion log entry recorded for room.
func (s *Store) NodeDeletionLog(ctx context.Context, room uid.Uid) ([]*NodeDeletionLogEntry, error) {
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT room, id, entity, deletion_date, verifying_key, signature
		FROM _node_deletion_log WHERE room = ? ORDER BY deletion_date`, room.Bytes())
	if err != nil {
		return nil, fmt.Errorf("graph: NodeDeletionLog: %w", err)
	}
	defer rows.Close()
	var out []*NodeDeletionLogEntry
	for rows.Next() {
		var roomB, idB, vk, sig []byte
		d := &NodeDeletionLogEntry{}
		if err := rows.Scan(&roomB, &idB, &d.Entity, &d.DeletionDate, &vk, &sig); err != nil {
			return nil, err
		}
		if d.Room, err = uid.FromBytes(roomB); err != nil {
			return nil, err
		}
		if d.ID, err = uid.FromBytes(idB); err != nil {
			return nil, err
		}
		copy(d.VerifyingKey[:], vk)
		copy(d.Signature[:], sig)
		out = append(out, d)
	}
	return out, rows.Err()
}

// EdgeDeletionLog returns every edge deletion log entry recorded for room.
func (s *Store) EdgeDeletionLog(ctx context.Context, room uid.Uid) ([]*EdgeDeletionLogEntry, error) {
	rows, err := s.engine.ReadConn().QueryContext(ctx, `
		SELECT room, src_entity, src, dest, label, deletion_date, verifying_key, signature
		FROM _edge_deletion_log WHERE room = ? ORDER BY deletion_date`, room.Bytes())
	if err != nil {
		return nil, fmt.Errorf("graph: EdgeDeletionLog: %w", err)
	}
	defer rows.Close()
	var out []*EdgeDeletionLogEntry
	for rows.Next() {
		var roomB, srcB, destB, vk, sig []byte
		d := &EdgeDeletionLogEntry{}
		if err := rows.Scan(&roomB, &d.SrcEntity, &srcB, &destB, &d.Label, &d.DeletionDate, &vk, &sig); err != nil {
			return nil, err
		}
		if d.Room, err = uid.FromBytes(roomB); err != nil {
			return nil, err
		}
		if d.Src, err = uid.FromBytes(srcB); err != nil {
			return nil, err
		}
		if d.Dest, err = uid.FromBytes(destB); err != nil {
			return nil, err
		}
		copy(d.VerifyingKey[:], vk)
		copy(d.Signature[:], sig)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Submit enqueues a WriteBatch for the writer task and blocks until it has
// been committed (or rejected). The whole batch commits atomically.
func (s *Store) Submit(ctx context.Context, batch WriteBatch) error {
	return s.writer.submit(ctx, batch)
}

func scanNodeRow(row rowScanner) (*Node, error) {
	return scanNode(row)
}

func scanNode(row rowScanner) (*Node, error) {
	n := &Node{}
	var roomID []byte
	var id []byte
	var vk []byte
	var sig []byte
	err := row.Scan(&id, &roomID, &n.CDate, &n.MDate, &n.Entity, &n.JSON, &n.Binary, &vk, &sig)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("graph: scan node: %w", err)
	}
	if n.ID, err = uid.FromBytes(id); err != nil {
		return nil, err
	}
	if len(roomID) > 0 {
		if n.RoomID, err = uid.FromBytes(roomID); err != nil {
			return nil, err
		}
	}
	copy(n.VerifyingKey[:], vk)
	copy(n.Signature[:], sig)
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEdgeRow(rows rowScanner) (*Edge, error) {
	e := &Edge{}
	var src, dest, vk, sig []byte
	if err := rows.Scan(&src, &e.SrcEntity, &e.Label, &dest, &e.CDate, &vk, &sig); err != nil {
		return nil, fmt.Errorf("graph: scan edge: %w", err)
	}
	var err error
	if e.Src, err = uid.FromBytes(src); err != nil {
		return nil, err
	}
	if e.Dest, err = uid.FromBytes(dest); err != nil {
		return nil, err
	}
	copy(e.VerifyingKey[:], vk)
	copy(e.Signature[:], sig)
	return e, nil
}
