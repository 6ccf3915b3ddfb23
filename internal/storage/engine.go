// Package storage adapts a relational engine (sqlite, via mattn/go-sqlite3)
// into Discret's page store: WAL mode, a dedicated writer connection, a
// bounded reader pool, and the scalar/aggregate user-defined functions
// required by §6.3 (C2).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Config parameterises the storage engine.
type Config struct {
	Path           string // database file path
	ReaderPoolSize int    // number of read-only connections, default 4
	WriteBatchSize int    // max buffered write tasks per transaction, default 64
	MaxRowBytes    int    // MAX_ROW, default 32*1024 (§6.5)
}

const (
	defaultReaderPoolSize = 4
	defaultWriteBatchSize = 64
	defaultMaxRowBytes    = 32 * 1024
)

// driverSeq makes each Engine register its own sqlite3 driver name, since
// go-sqlite3 binds ConnectHook (and thus UDF registration) at driver
// registration time, not per *sql.DB.
var driverSeq uint64

// Engine owns the write connection, the reader pool and the registered UDFs.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	writeDB *sql.DB // single connection, enforced via SetMaxOpenConns(1)
	readDB  *sql.DB // pooled read-only connections

	driverName string
}

// Open creates (or opens) the database file, applies the schema, enables
// WAL, and wires the compress/decompress/decompress_text/json_data/hash
// UDFs (§6.3) onto every connection via a ConnectHook.
func Open(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.ReaderPoolSize <= 0 {
		cfg.ReaderPoolSize = defaultReaderPoolSize
	}
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = defaultWriteBatchSize
	}
	if cfg.MaxRowBytes <= 0 {
		cfg.MaxRowBytes = defaultMaxRowBytes
	}

	name := fmt.Sprintf("discret-sqlite3-%d", atomic.AddUint64(&driverSeq, 1))
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: registerUDFs,
	})

	dsn := cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"

	writeDB, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open write conn: %w", err)
	}
	writeDB.SetMaxOpenConns(1) // exactly one writer per database file (§4.1)
	writeDB.SetMaxIdleConns(1)

	readDB, err := sql.Open(name, dsn+"&mode=ro&_query_only=on")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("storage: open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(cfg.ReaderPoolSize)
	readDB.SetMaxIdleConns(cfg.ReaderPoolSize)

	e := &Engine{cfg: cfg, logger: logger, writeDB: writeDB, readDB: readDB, driverName: name}
	if err := e.migrate(); err != nil {
		e.Close()
		return nil, err
	}
	logger.Info("storage engine opened", zap.String("path", cfg.Path), zap.Int("readers", cfg.ReaderPoolSize))
	return e, nil
}

// Close releases both connection pools.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.writeDB.Close(); err != nil {
		firstErr = err
	}
	if err := e.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// WriteConn exposes the single writer connection for the writer task (internal/graph).
func (e *Engine) WriteConn() *sql.DB { return e.writeDB }

// ReadConn exposes the reader pool for bounded concurrent reads.
func (e *Engine) ReadConn() *sql.DB { return e.readDB }

// MaxRowBytes returns the configured MAX_ROW limit.
func (e *Engine) MaxRowBytes() int { return e.cfg.MaxRowBytes }

// DailyHashEntry is one (entity, day) bucket's recorded hash, returned by
// RoomDailyHashes for the RoomLog step of synchronisation (§4.7).
type DailyHashEntry struct {
	Entity string
	Day    int64
	Hash   []byte
}

// RoomDailyHashes returns every recomputed bucket hash for roomBytes,
// letting a peer diff its own buckets against a remote's without pulling
// node rows first.
func (e *Engine) RoomDailyHashes(ctx context.Context, roomBytes []byte) ([]DailyHashEntry, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT entity, date, daily_hash FROM _daily_node_log
		WHERE room = ? AND need_recompute = 0 ORDER BY entity, date`, roomBytes)
	if err != nil {
		return nil, fmt.Errorf("storage: RoomDailyHashes: %w", err)
	}
	defer rows.Close()
	var out []DailyHashEntry
	for rows.Next() {
		var e DailyHashEntry
		if err := rows.Scan(&e.Entity, &e.Day, &e.Hash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgeDailyHashEntry is one (label, day) edge bucket's recorded hash.
type EdgeDailyHashEntry struct {
	Label int
	Day   int64
	Hash  []byte
}

// RoomEdgeDailyHashes returns every recomputed edge bucket hash for
// roomBytes, the edge-side counterpart to RoomDailyHashes.
func (e *Engine) RoomEdgeDailyHashes(ctx context.Context, roomBytes []byte) ([]EdgeDailyHashEntry, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT entity, date, daily_hash FROM _daily_edge_log
		WHERE room = ? AND need_recompute = 0 ORDER BY entity, date`, roomBytes)
	if err != nil {
		return nil, fmt.Errorf("storage: RoomEdgeDailyHashes: %w", err)
	}
	defer rows.Close()
	var out []EdgeDailyHashEntry
	for rows.Next() {
		var en EdgeDailyHashEntry
		if err := rows.Scan(&en.Label, &en.Day, &en.Hash); err != nil {
			return nil, err
		}
		out = append(out, en)
	}
	return out, rows.Err()
}

// GetConfigValue reads one entry from the _configuration table (§6.3),
// used to persist node-local facts that are not themselves graph data,
// such as the peer's auto-created private room id.
func (e *Engine) GetConfigValue(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := e.readDB.QueryRowContext(ctx, `SELECT value FROM _configuration WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: GetConfigValue: %w", err)
	}
	return value, true, nil
}

// SetConfigValue upserts one entry into the _configuration table.
func (e *Engine) SetConfigValue(ctx context.Context, key string, value []byte) error {
	_, err := e.writeDB.ExecContext(ctx,
		`INSERT INTO _configuration(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("storage: SetConfigValue: %w", err)
	}
	return nil
}
