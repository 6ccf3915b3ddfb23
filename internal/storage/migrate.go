package storage

// schema is applied once at Open time; CREATE ... IF NOT EXISTS makes it
// idempotent across restarts, matching the teacher's own migration style
// (embedded schema string, executed unconditionally on open).
const schema = `
CREATE TABLE IF NOT EXISTS _node (
	id         BLOB NOT NULL,
	room_id    BLOB,
	cdate      INTEGER NOT NULL,
	mdate      INTEGER NOT NULL,
	_entity    TEXT NOT NULL,
	_json      BLOB,
	_binary    BLOB,
	verifying_key BLOB NOT NULL,
	_signature BLOB NOT NULL,
	PRIMARY KEY (id, _entity, mdate)
);
CREATE INDEX IF NOT EXISTS idx_node_entity_id ON _node(_entity, id);
CREATE INDEX IF NOT EXISTS idx_node_room_entity_mdate ON _node(room_id, _entity, mdate);

CREATE VIRTUAL TABLE IF NOT EXISTS _node_fts USING fts4(id, content, tokenize=unicode61);

CREATE TABLE IF NOT EXISTS _edge (
	src        BLOB NOT NULL,
	src_entity INTEGER NOT NULL,
	label      INTEGER NOT NULL,
	dest       BLOB NOT NULL,
	cdate      INTEGER NOT NULL,
	verifying_key BLOB NOT NULL,
	signature  BLOB NOT NULL,
	PRIMARY KEY (src, label, dest)
);
CREATE INDEX IF NOT EXISTS idx_edge_dest ON _edge(dest, label);

CREATE TABLE IF NOT EXISTS _node_deletion_log (
	room           BLOB NOT NULL,
	id             BLOB NOT NULL,
	entity         TEXT NOT NULL,
	deletion_date  INTEGER NOT NULL,
	verifying_key  BLOB NOT NULL,
	signature      BLOB NOT NULL,
	PRIMARY KEY (room, deletion_date, id, entity)
);

CREATE TABLE IF NOT EXISTS _edge_deletion_log (
	room           BLOB NOT NULL,
	src_entity     INTEGER NOT NULL,
	src            BLOB NOT NULL,
	dest           BLOB NOT NULL,
	label          INTEGER NOT NULL,
	deletion_date  INTEGER NOT NULL,
	verifying_key  BLOB NOT NULL,
	signature      BLOB NOT NULL,
	PRIMARY KEY (room, deletion_date, src, label, dest)
);

CREATE TABLE IF NOT EXISTS _daily_node_log (
	room            BLOB NOT NULL,
	entity          INTEGER NOT NULL,
	date            INTEGER NOT NULL,
	entry_count     INTEGER NOT NULL DEFAULT 0,
	daily_hash      BLOB,
	need_recompute  INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (room, entity, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_node_log_dirty ON _daily_node_log(need_recompute, room, date);

CREATE TABLE IF NOT EXISTS _daily_edge_log (
	room            BLOB NOT NULL,
	entity          INTEGER NOT NULL,
	date            INTEGER NOT NULL,
	entry_count     INTEGER NOT NULL DEFAULT 0,
	daily_hash      BLOB,
	need_recompute  INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (room, entity, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_edge_log_dirty ON _daily_edge_log(need_recompute, room, date);

CREATE TABLE IF NOT EXISTS _configuration (
	key   TEXT PRIMARY KEY,
	value BLOB
);
`

// migrate applies the schema. It runs on the write connection so it
// participates in the same WAL the writer task later uses.
func (e *Engine) migrate() error {
	_, err := e.writeDB.Exec(schema)
	return err
}
