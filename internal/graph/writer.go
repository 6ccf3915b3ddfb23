package graph

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/discretlib/discret/internal/storage"
)

// WriteBatch groups every row a single mutation touches (§4.1): it commits
// as one SQLite transaction, or not at all.
type WriteBatch struct {
	Nodes        []*Node
	NodeDeletes  []*NodeDeletionLogEntry
	Edges        []*Edge
	EdgeDeletes  []*EdgeDeletionLogEntry
}

type writeRequest struct {
	ctx   context.Context
	batch WriteBatch
	resp  chan error
}

// writerTask serialises writes onto the storage engine's single writer
// connection, folding up to batchSize pending requests into one
// transaction at a time — the same buffered-task-then-flush shape the
// teacher uses for its connection pool reaper.
type writerTask struct {
	engine    *storage.Engine
	logger    *zap.Logger
	batchSize int
	maxRow    int

	queue     chan writeRequest
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func newWriterTask(engine *storage.Engine, logger *zap.Logger, batchSize int) *writerTask {
	if batchSize <= 0 {
		batchSize = 64
	}
	w := &writerTask{
		engine:    engine,
		logger:    logger,
		batchSize: batchSize,
		maxRow:    engine.MaxRowBytes(),
		queue:     make(chan writeRequest, batchSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writerTask) stop() {
	w.closeOnce.Do(func() { close(w.closing) })
	<-w.done
}

func (w *writerTask) submit(ctx context.Context, batch WriteBatch) error {
	if err := checkRowSizes(batch, w.maxRow); err != nil {
		return err
	}
	resp := make(chan error, 1)
	select {
	case w.queue <- writeRequest{ctx: ctx, batch: batch, resp: resp}:
	case <-w.closing:
		return fmt.Errorf("graph: writer task stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writerTask) run() {
	defer close(w.done)
	for {
		var first writeRequest
		select {
		case first = <-w.queue:
		case <-w.closing:
			w.drain()
			return
		}
		pending := []writeRequest{first}
	drainMore:
		for len(pending) < w.batchSize {
			select {
			case req := <-w.queue:
				pending = append(pending, req)
			default:
				break drainMore
			}
		}
		w.flush(pending)
	}
}

func (w *writerTask) drain() {
	for {
		select {
		case req := <-w.queue:
			req.resp <- fmt.Errorf("graph: writer task stopped")
		default:
			return
		}
	}
}

func (w *writerTask) flush(reqs []writeRequest) {
	tx, err := w.engine.WriteConn().Begin()
	if err != nil {
		respondAll(reqs, fmt.Errorf("%w: %v", ErrDatabaseWriteError, err))
		return
	}
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		errs[i] = applyBatch(tx, req.batch)
	}
	anyFailed := false
	for _, e := range errs {
		if e != nil {
			anyFailed = true
			break
		}
	}
	if anyFailed {
		tx.Rollback()
		for i, req := range reqs {
			if errs[i] == nil {
				errs[i] = fmt.Errorf("%w: sibling write in batch failed", ErrDatabaseWriteError)
			}
			req.resp <- errs[i]
		}
		return
	}
	if err := tx.Commit(); err != nil {
		respondAll(reqs, fmt.Errorf("%w: commit: %v", ErrDatabaseWriteError, err))
		return
	}
	for i, req := range reqs {
		req.resp <- errs[i]
	}
}

func respondAll(reqs []writeRequest, err error) {
	for _, req := range reqs {
		req.resp <- err
	}
}

func applyBatch(tx *sql.Tx, b WriteBatch) error {
	for _, n := range b.Nodes {
		if _, err := tx.Exec(`
			INSERT INTO _node (id, room_id, cdate, mdate, _entity, _json, _binary, verifying_key, _signature)
			VALUES (?1, ?2, ?3, ?4, ?5,
				CASE WHEN ?6 IS NULL THEN NULL ELSE compress(?6) END,
				CASE WHEN ?7 IS NULL THEN NULL ELSE compress(?7) END,
				?8, ?9)`,
			n.ID.Bytes(), roomBytes(n.RoomID), n.CDate, n.MDate, n.Entity, n.JSON, n.Binary, n.VerifyingKey[:], n.Signature[:]); err != nil {
			return fmt.Errorf("%w: insert node: %v", ErrDatabaseWriteError, err)
		}
		if len(n.JSON) > 0 {
			if _, err := tx.Exec(`INSERT INTO _node_fts (id, content) VALUES (?, json_data(?))`,
				n.ID.String(), string(n.JSON)); err != nil {
				return fmt.Errorf("%w: index node: %v", ErrDatabaseWriteError, err)
			}
		}
	}
	for _, e := range b.Edges {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO _edge (src, src_entity, label, dest, cdate, verifying_key, signature)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Src.Bytes(), e.SrcEntity, e.Label, e.Dest.Bytes(), e.CDate, e.VerifyingKey[:], e.Signature[:]); err != nil {
			return fmt.Errorf("%w: insert edge: %v", ErrDatabaseWriteError, err)
		}
	}
	for _, d := range b.NodeDeletes {
		if _, err := tx.Exec(`
			INSERT INTO _node_deletion_log (room, id, entity, deletion_date, verifying_key, signature)
			VALUES (?, ?, ?, ?, ?, ?)`,
			roomBytes(d.Room), d.ID.Bytes(), d.Entity, d.DeletionDate, d.VerifyingKey[:], d.Signature[:]); err != nil {
			return fmt.Errorf("%w: insert node deletion log: %v", ErrDatabaseWriteError, err)
		}
	}
	for _, d := range b.EdgeDeletes {
		if _, err := tx.Exec(`
			INSERT INTO _edge_deletion_log (room, src_entity, src, dest, label, deletion_date, verifying_key, signature)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			roomBytes(d.Room), d.SrcEntity, d.Src.Bytes(), d.Dest.Bytes(), d.Label, d.DeletionDate, d.VerifyingKey[:], d.Signature[:]); err != nil {
			return fmt.Errorf("%w: insert edge deletion log: %v", ErrDatabaseWriteError, err)
		}
		if _, err := tx.Exec(`DELETE FROM _edge WHERE src = ? AND label = ? AND dest = ?`,
			d.Src.Bytes(), d.Label, d.Dest.Bytes()); err != nil {
			return fmt.Errorf("%w: delete edge: %v", ErrDatabaseWriteError, err)
		}
	}
	return nil
}

func checkRowSizes(b WriteBatch, maxRow int) error {
	for _, n := range b.Nodes {
		if len(n.JSON)+len(n.Binary) > maxRow {
			return fmt.Errorf("%w: node %s entity %s", ErrRowTooLong, n.ID, n.Entity)
		}
	}
	return nil
}

func roomBytes(id interface{ Bytes() []byte }) []byte {
	b := id.Bytes()
	for _, c := range b {
		if c != 0 {
			return b
		}
	}
	return nil
}
