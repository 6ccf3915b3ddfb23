// Package dailylog implements Discret's daily-log index (C7): per
// (room, entity, day) rolling hash buckets, dirty-bucket tracking, and the
// background recompute task described in spec.md §4.6.
package dailylog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/storage"
	"github.com/discretlib/discret/internal/uid"
)

const dayMillis = 86400000

// BucketKey identifies one (room, entity, day) daily-log bucket.
type BucketKey struct {
	Room   uid.Uid
	Entity string
	Day    int64 // mdate / dayMillis
}

// EdgeBucketKey identifies one (room, label, day) edge daily-log bucket.
// Edges have no entity name of their own (§3.4's short_name label stands
// in for it), so they bucket by field label rather than entity string.
type EdgeBucketKey struct {
	Room  uid.Uid
	Label int
	Day   int64 // cdate / dayMillis
}

// DayOf returns the bucket day for a millisecond timestamp.
func DayOf(mdateMillis int64) int64 {
	return mdateMillis / dayMillis
}

// RoomRollup is the per-room summary rolled up from its daily buckets,
// exchanged during synchronisation (§4.7) to decide whether two peers'
// copies of a room have diverged.
type RoomRollup struct {
	LastDataDate int64
	DailyHash    [identity.HashSize]byte
	HistoryHash  [identity.HashSize]byte
	RoomDefDate  int64
}

// Index owns the daily-log tables and the background recompute loop.
type Index struct {
	engine *storage.Engine
	logger *logrus.Logger
	bus    *events.Bus

	dirtyMu     sync.Mutex
	dirty       map[BucketKey]bool
	dirtyEdges  map[EdgeBucketKey]bool
	dirtyCh     chan struct{}
	closing     chan struct{}
	done        chan struct{}
}

// Open starts the background recompute loop, which wakes whenever Mark is
// called or the quiescent-period ticker fires (§4.6: "triggered after a
// quiescent period or event"). bus may be nil; when set, a ComputedDailyLog
// event (§6.2) is published after every completed recompute pass.
func Open(engine *storage.Engine, logger *logrus.Logger, bus *events.Bus, quiescent time.Duration) *Index {
	idx := &Index{
		engine:     engine,
		logger:     logger,
		bus:        bus,
		dirty:      make(map[BucketKey]bool),
		dirtyEdges: make(map[EdgeBucketKey]bool),
		dirtyCh:    make(chan struct{}, 1),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	go idx.run(quiescent)
	return idx
}

// Close stops the recompute loop.
func (idx *Index) Close() {
	close(idx.closing)
	<-idx.done
}

// Mark records that a (room, entity, day) bucket has new rows, per the
// commit-phase contract in §4.3/§4.6. It is safe to call concurrently.
func (idx *Index) Mark(room uid.Uid, entity string, mdateMillis int64) {
	key := BucketKey{Room: room, Entity: entity, Day: DayOf(mdateMillis)}
	idx.dirtyMu.Lock()
	idx.dirty[key] = true
	dirtyBacklog.Set(float64(len(idx.dirty)))
	idx.dirtyMu.Unlock()
	select {
	case idx.dirtyCh <- struct{}{}:
	default:
	}
}

// MarkEdge records that a (room, label, day) edge bucket has new rows,
// the edge-side counterpart to Mark (§4.3/§4.6). Safe to call concurrently.
func (idx *Index) MarkEdge(room uid.Uid, label int, cdateMillis int64) {
	key := EdgeBucketKey{Room: room, Label: label, Day: DayOf(cdateMillis)}
	idx.dirtyMu.Lock()
	idx.dirtyEdges[key] = true
	dirtyBacklog.Set(float64(len(idx.dirty) + len(idx.dirtyEdges)))
	idx.dirtyMu.Unlock()
	select {
	case idx.dirtyCh <- struct{}{}:
	default:
	}
}

func (idx *Index) run(quiescent time.Duration) {
	defer close(idx.done)
	ticker := time.NewTicker(quiescent)
	defer ticker.Stop()
	for {
		select {
		case <-idx.closing:
			return
		case <-idx.dirtyCh:
		case <-ticker.C:
		}
		if err := idx.RecomputeDirty(context.Background()); err != nil {
			idx.logger.WithError(err).Warn("dailylog recompute failed")
		}
	}
}

// RecomputeDirty rebuilds every bucket currently marked dirty and clears
// their flags (§4.6 steps 1-4), node buckets and edge buckets alike.
func (idx *Index) RecomputeDirty(ctx context.Context) error {
	idx.dirtyMu.Lock()
	keys := make([]BucketKey, 0, len(idx.dirty))
	for k, v := range idx.dirty {
		if v {
			keys = append(keys, k)
		}
	}
	edgeKeys := make([]EdgeBucketKey, 0, len(idx.dirtyEdges))
	for k, v := range idx.dirtyEdges {
		if v {
			edgeKeys = append(edgeKeys, k)
		}
	}
	idx.dirtyMu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Room != keys[j].Room {
			return keys[i].Room.String() < keys[j].Room.String()
		}
		if keys[i].Entity != keys[j].Entity {
			return keys[i].Entity < keys[j].Entity
		}
		return keys[i].Day < keys[j].Day
	})
	for _, k := range keys {
		if err := idx.recomputeBucket(ctx, k); err != nil {
			return err
		}
		idx.dirtyMu.Lock()
		delete(idx.dirty, k)
		backlog := len(idx.dirty) + len(idx.dirtyEdges)
		idx.dirtyMu.Unlock()
		dirtyBacklog.Set(float64(backlog))
	}

	sort.Slice(edgeKeys, func(i, j int) bool {
		if edgeKeys[i].Room != edgeKeys[j].Room {
			return edgeKeys[i].Room.String() < edgeKeys[j].Room.String()
		}
		if edgeKeys[i].Label != edgeKeys[j].Label {
			return edgeKeys[i].Label < edgeKeys[j].Label
		}
		return edgeKeys[i].Day < edgeKeys[j].Day
	})
	for _, k := range edgeKeys {
		if err := idx.recomputeEdgeBucket(ctx, k); err != nil {
			return err
		}
		idx.dirtyMu.Lock()
		delete(idx.dirtyEdges, k)
		backlog := len(idx.dirty) + len(idx.dirtyEdges)
		idx.dirtyMu.Unlock()
		dirtyBacklog.Set(float64(backlog))
	}

	total := len(keys) + len(edgeKeys)
	if total > 0 && idx.bus != nil {
		idx.bus.Publish(events.Event{
			Kind:   events.ComputedDailyLog,
			Time:   time.Now().UnixMilli(),
			Result: fmt.Sprintf("recomputed %d bucket(s)", total),
		})
	}
	return nil
}

func (idx *Index) recomputeBucket(ctx context.Context, k BucketKey) error {
	rows, err := idx.engine.ReadConn().QueryContext(ctx, `
		SELECT id, mdate,
			CASE WHEN _json IS NULL THEN NULL ELSE decompress(_json) END,
			CASE WHEN _binary IS NULL THEN NULL ELSE decompress(_binary) END,
			_signature
		FROM _node
		WHERE room_id = ? AND _entity = ? AND mdate/? = ?
		ORDER BY mdate, id`, k.Room.Bytes(), k.Entity, dayMillis, k.Day)
	if err != nil {
		return fmt.Errorf("dailylog: query bucket: %w", err)
	}
	defer rows.Close()

	hasher := identity.NewRollingHasher()
	count := 0
	for rows.Next() {
		var id, jsonBlob, binBlob, sig []byte
		var mdate int64
		if err := rows.Scan(&id, &mdate, &jsonBlob, &binBlob, &sig); err != nil {
			return fmt.Errorf("dailylog: scan bucket row: %w", err)
		}
		hasher.Write(id)
		hasher.Write(jsonBlob)
		hasher.Write(binBlob)
		hasher.Write(sig)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	digest := hasher.Sum()

	_, err = idx.engine.WriteConn().ExecContext(ctx, `
		INSERT INTO _daily_node_log (room, entity, date, entry_count, daily_hash, need_recompute)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(room, entity, date) DO UPDATE SET
			entry_count = excluded.entry_count,
			daily_hash = excluded.daily_hash,
			need_recompute = 0`,
		k.Room.Bytes(), k.Entity, k.Day, count, digest[:])
	if err != nil {
		return fmt.Errorf("dailylog: persist bucket: %w", err)
	}
	return nil
}

// recomputeEdgeBucket folds one (room, label, day) edge bucket's rows into a
// digest and persists it to _daily_edge_log. Edges carry no room_id of
// their own (§3.4), so the bucket is scoped to room by joining against the
// owning node's _node.room_id through its src id.
func (idx *Index) recomputeEdgeBucket(ctx context.Context, k EdgeBucketKey) error {
	rows, err := idx.engine.ReadConn().QueryContext(ctx, `
		SELECT e.src, e.dest, e.cdate, e.signature
		FROM _edge e
		INNER JOIN _node n ON n.id = e.src
		WHERE n.room_id = ? AND e.label = ? AND e.cdate/? = ?
		ORDER BY e.cdate, e.src, e.dest`, k.Room.Bytes(), k.Label, dayMillis, k.Day)
	if err != nil {
		return fmt.Errorf("dailylog: query edge bucket: %w", err)
	}
	defer rows.Close()

	hasher := identity.NewRollingHasher()
	count := 0
	for rows.Next() {
		var src, dest, sig []byte
		var cdate int64
		if err := rows.Scan(&src, &dest, &cdate, &sig); err != nil {
			return fmt.Errorf("dailylog: scan edge bucket row: %w", err)
		}
		hasher.Write(src)
		hasher.Write(dest)
		hasher.Write(sig)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	digest := hasher.Sum()

	_, err = idx.engine.WriteConn().ExecContext(ctx, `
		INSERT INTO _daily_edge_log (room, entity, date, entry_count, daily_hash, need_recompute)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(room, entity, date) DO UPDATE SET
			entry_count = excluded.entry_count,
			daily_hash = excluded.daily_hash,
			need_recompute = 0`,
		k.Room.Bytes(), k.Label, k.Day, count, digest[:])
	if err != nil {
		return fmt.Errorf("dailylog: persist edge bucket: %w", err)
	}
	return nil
}

// RoomRollupOf recomputes the per-room summary of §4.6 step 3: history_hash
// rolls every bucket's daily_hash, in (entity, day) order, into one digest
// covering the room's whole history; daily_hash rolls only the buckets of
// the most recent day, so the two diverge as soon as a room has more than
// one day of data.
func RoomRollupOf(ctx context.Context, engine *storage.Engine, room uid.Uid) (RoomRollup, error) {
	rows, err := engine.ReadConn().QueryContext(ctx, `
		SELECT entity, date, daily_hash FROM _daily_node_log
		WHERE room = ? AND need_recompute = 0
		ORDER BY entity, date`, room.Bytes())
	if err != nil {
		return RoomRollup{}, fmt.Errorf("dailylog: query rollup: %w", err)
	}
	defer rows.Close()

	type bucketDigest struct {
		Day  int64
		Hash []byte
	}
	var buckets []bucketDigest
	var lastDay int64
	for rows.Next() {
		var entity string
		var day int64
		var hash []byte
		if err := rows.Scan(&entity, &day, &hash); err != nil {
			return RoomRollup{}, err
		}
		buckets = append(buckets, bucketDigest{Day: day, Hash: hash})
		if day > lastDay {
			lastDay = day
		}
	}
	if err := rows.Err(); err != nil {
		return RoomRollup{}, err
	}

	historyHasher := identity.NewRollingHasher()
	dailyHasher := identity.NewRollingHasher()
	for _, b := range buckets {
		historyHasher.Write(b.Hash)
		if b.Day == lastDay {
			dailyHasher.Write(b.Hash)
		}
	}

	roomDefDate, err := maxRoomDefDate(ctx, engine, room)
	if err != nil {
		return RoomRollup{}, err
	}

	return RoomRollup{
		LastDataDate: lastDay * dayMillis,
		DailyHash:    dailyHasher.Sum(),
		HistoryHash:  historyHasher.Sum(),
		RoomDefDate:  roomDefDate,
	}, nil
}

// maxRoomDefDate returns the highest mdate among this room's Room,
// Authorisation, EntityRight and UserAuth nodes (§4.1's room_def_date).
func maxRoomDefDate(ctx context.Context, engine *storage.Engine, room uid.Uid) (int64, error) {
	row := engine.ReadConn().QueryRowContext(ctx, `
		SELECT COALESCE(MAX(mdate), 0) FROM _node
		WHERE room_id = ? AND _entity IN ('Room', 'Authorisation', 'EntityRight', 'UserAuth')`, room.Bytes())
	var maxDate sql.NullInt64
	if err := row.Scan(&maxDate); err != nil {
		return 0, fmt.Errorf("dailylog: room_def_date: %w", err)
	}
	return maxDate.Int64, nil
}
