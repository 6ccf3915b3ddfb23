// Package discret is Discret's embedding API (§6.1): one Handle per node,
// opened with a schema DSL, an application name, 32 bytes of key material
// and a storage path, exposing mutate/query/delete, invite/accept-invite,
// peer synchronisation and a local event subscription. keyMaterial
// deterministically derives the node's Ed25519 identity; the page store
// itself (§1) is treated as an external relational engine and is not
// encrypted by this package.
package discret

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/discretlib/discret/internal/dailylog"
	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/model"
	"github.com/discretlib/discret/internal/query"
	"github.com/discretlib/discret/internal/roomlock"
	"github.com/discretlib/discret/internal/storage"
	"github.com/discretlib/discret/internal/syncproto"
	"github.com/discretlib/discret/internal/transport"
	"github.com/discretlib/discret/internal/uid"
	"github.com/discretlib/discret/pkg/config"
)

// privateRoomConfigKey names the _configuration row holding the peer's
// auto-created private room id, so restarts reuse the same room (§6.1
// "auto-created on first run").
const privateRoomConfigKey = "private_room"

// modelConfigKey names the _configuration row holding the last DSL this
// node opened with, so a later New() can validate the caller's schema
// change as a backward-compatible evolution (§3.2) rather than silently
// starting from a fresh, unrelated short_name assignment.
const modelConfigKey = "model_dsl"

// Handle is one open Discret node: its identity, its storage, and every
// subsystem wired together per SPEC_FULL.md §0.
type Handle struct {
	cfg      config.Config
	model    *model.DataModel
	engine   *storage.Engine
	store    *graph.Store
	dailyLog *dailylog.Index
	bus      *events.Bus
	locks    *roomlock.Manager
	sk       *identity.SigningKey
	executor *query.Executor
	zlog     *zap.Logger

	syncNode *syncproto.Node

	mu           sync.Mutex
	privateRoom  uid.Uid
	ownedInvites map[identity.VerifyingKey]*events.OwnedInvite
	listener     *transport.Listener
}

// New opens (or creates) a Discret node backed by the database at path. The
// schema DSL describes the application's own entities on top of the
// always-present system namespace (§3.2); keyMaterial must be exactly 32
// bytes and deterministically derives the node's Ed25519 identity. appName
// namespaces nothing at this layer yet but is kept on the signature so a
// future multi-tenant embedding can fold it into key derivation without
// breaking this signature.
func New(modelDSL, appName string, keyMaterial []byte, path string, cfg config.Config) (*Handle, error) {
	dm, err := model.Parse(modelDSL)
	if err != nil {
		return nil, fmt.Errorf("discret: parse model: %w", err)
	}

	sk, err := identity.SigningKeyFromSeed(keyMaterial)
	if err != nil {
		return nil, fmt.Errorf("discret: derive identity: %w", err)
	}

	zlog, err := newZapLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("discret: build logger: %w", err)
	}
	taskLog := newLogrusLogger(cfg.Logging.Level)

	engine, err := storage.Open(storage.Config{
		Path:           path,
		ReaderPoolSize: cfg.Storage.ReaderPoolSize,
		WriteBatchSize: cfg.Storage.WriteBatchSize,
		MaxRowBytes:    cfg.Storage.MaxRowBytes,
	}, zlog)
	if err != nil {
		return nil, fmt.Errorf("discret: open storage: %w", err)
	}

	if err := evolveStoredModel(context.Background(), engine, dm, modelDSL); err != nil {
		engine.Close()
		return nil, fmt.Errorf("discret: evolve model: %w", err)
	}

	store := graph.Open(engine, zlog, cfg.Storage.WriteBatchSize)
	quiescent := time.Duration(cfg.Sync.DailyLogQuiescentMS) * time.Millisecond
	bus := events.NewBus()
	dlog := dailylog.Open(engine, taskLog, bus, quiescent)
	locks := roomlock.NewManager(cfg.Sync.MaxConcurrentSync)

	h := &Handle{
		cfg:          cfg,
		model:        dm,
		engine:       engine,
		store:        store,
		dailyLog:     dlog,
		bus:          bus,
		locks:        locks,
		sk:           sk,
		zlog:         zlog,
		ownedInvites: make(map[identity.VerifyingKey]*events.OwnedInvite),
	}
	h.executor = &query.Executor{
		Model:    dm,
		Store:    store,
		DailyLog: dlog,
		Bus:      bus,
		Identity: sk,
	}
	h.syncNode = &syncproto.Node{
		Model:            dm,
		Store:            store,
		DailyLog:         dlog,
		Locks:            locks,
		Bus:              bus,
		Identity:         sk,
		Logger:           taskLog,
		SignatureWorkers: cfg.Sync.SignatureWorkers,
	}

	if err := h.ensurePrivateRoom(context.Background()); err != nil {
		h.Close()
		return nil, fmt.Errorf("discret: ensure private room: %w", err)
	}
	return h, nil
}

// evolveStoredModel validates the caller's modelDSL against whichever DSL
// this database was last opened with (if any), merging it in place via
// dm.Update so existing short_names survive, then persists the new DSL for
// next time. On first run there is nothing to evolve against.
func evolveStoredModel(ctx context.Context, engine *storage.Engine, dm *model.DataModel, modelDSL string) error {
	raw, ok, err := engine.GetConfigValue(ctx, modelConfigKey)
	if err != nil {
		return err
	}
	if ok {
		stored, err := model.Parse(string(raw))
		if err != nil {
			return fmt.Errorf("parse stored model: %w", err)
		}
		if err := stored.Update(dm); err != nil {
			return err
		}
		*dm = *stored
	}
	return engine.SetConfigValue(ctx, modelConfigKey, []byte(modelDSL))
}

func newZapLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(levelOrDefault(level)); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// newLogrusLogger builds the logger internal/dailylog and internal/syncproto
// log through — task-coordination packages use logrus, hot-path packages
// use zap (SPEC_FULL.md §1).
func newLogrusLogger(level string) *logrus.Logger {
	l := logrus.New()
	if lv, err := logrus.ParseLevel(levelOrDefault(level)); err == nil {
		l.SetLevel(lv)
	}
	return l
}

// Close releases every subsystem the Handle owns. It does not remove the
// database file.
func (h *Handle) Close() error {
	if h.listener != nil {
		h.listener.Close()
	}
	if h.dailyLog != nil {
		h.dailyLog.Close()
	}
	if h.store != nil {
		h.store.Close()
	}
	if h.engine != nil {
		return h.engine.Close()
	}
	return nil
}

// VerifyingKey returns the node's own base64url-encoded Ed25519 public key
// (§6.1 handle.verifying_key()).
func (h *Handle) VerifyingKey() string {
	return h.sk.Public().String()
}

// PrivateRoom returns the base64url id of this peer's auto-created private
// room (§6.1 handle.private_room()).
func (h *Handle) PrivateRoom() string {
	return h.privateRoom.String()
}

// ensurePrivateRoom loads a previously persisted private room id, or
// bootstraps a brand-new Room with this peer as its sole admin on first
// run. The genesis Room node cannot go through the normal authorise phase
// (§4.4) since no Authorisation exists yet to grant it — room creation is
// necessarily a direct, self-signed act.
func (h *Handle) ensurePrivateRoom(ctx context.Context) error {
	raw, ok, err := h.engine.GetConfigValue(ctx, privateRoomConfigKey)
	if err != nil {
		return err
	}
	if ok {
		room, err := uid.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("discret: decode persisted private room: %w", err)
		}
		h.privateRoom = room
		return nil
	}

	room := uid.MustNew()
	now := nowMillis()
	payload, err := json.Marshal(struct {
		Admins []userAuthPayload `json:"admins"`
	}{
		Admins: []userAuthPayload{{VerifyingKey: h.sk.Public().String(), Date: now, Enabled: true}},
	})
	if err != nil {
		return err
	}
	n := &graph.Node{ID: room, RoomID: room, CDate: now, MDate: now, Entity: "Room", JSON: payload}
	n.Sign(h.sk)
	if err := h.store.Submit(ctx, graph.WriteBatch{Nodes: []*graph.Node{n}}); err != nil {
		return err
	}
	h.dailyLog.Mark(room, "Room", now)
	if err := h.engine.SetConfigValue(ctx, privateRoomConfigKey, room.Bytes()); err != nil {
		return err
	}
	h.privateRoom = room
	return nil
}

type userAuthPayload struct {
	VerifyingKey string `json:"verifying_key"`
	Date         int64  `json:"date"`
	Enabled      bool   `json:"enabled"`
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Mutate parses and executes a mutation against the graph (§4.4).
func (h *Handle) Mutate(source string, params map[string]interface{}) error {
	return h.executor.Mutate(context.Background(), source, params, nowMillis())
}

// Query parses and executes a read query, returning one JSON-shaped map per
// matching row (§4.4's read side).
func (h *Handle) Query(source string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return h.executor.Query(context.Background(), source, params)
}

// Delete tombstones one entity row, provided the caller's authorisation
// covers it (§4.4).
func (h *Handle) Delete(source string, params map[string]interface{}) error {
	rq, err := query.ParseQuery(source, params)
	if err != nil {
		return err
	}
	idParam, ok := params["id"]
	if !ok {
		return fmt.Errorf("discret: delete requires an \"id\" parameter")
	}
	idStr, ok := idParam.(string)
	if !ok {
		return fmt.Errorf("discret: delete \"id\" parameter must be a string")
	}
	id, err := uid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("discret: invalid id: %w", err)
	}
	return h.executor.Delete(context.Background(), rq.Entity, id, nowMillis())
}

// Invite creates a new invite for defaultRoom (the peer's private room if
// nil) and returns its opaque, portable bytes (§6.1 handle.invite()). The
// inviter keeps the matching OwnedInvite in memory, keyed by its own
// verifying key, so each new invite replaces the previous one; no other
// code path reads it back.
func (h *Handle) Invite(defaultRoom *uid.Uid) ([]byte, error) {
	room := h.privateRoom
	if defaultRoom != nil {
		room = *defaultRoom
	}
	owned, invite, err := events.CreateInvite(h.sk, room, time.Now().Add(7*24*time.Hour))
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.ownedInvites[invite.InviterKey] = owned
	h.mu.Unlock()

	return json.Marshal(invite)
}

// AcceptInvite decodes a previously handed-out invite and admits the
// carrier as an AllowedPeer for its default room (§6.1
// handle.accept_invite()). The accepting peer cannot independently verify
// the inviter's intended expiry (only the inviter's own OwnedInvite carries
// it), and no later step checks it either: the AllowedPeer row is written
// as soon as the invite's signature verifies, and synchronisation does not
// countersign or re-check it.
func (h *Handle) AcceptInvite(inviteBytes []byte) error {
	var invite events.Invite
	if err := json.Unmarshal(inviteBytes, &invite); err != nil {
		return fmt.Errorf("discret: decode invite: %w", err)
	}
	now := time.Now()
	allowed, err := events.AcceptInvite(&invite, h.sk.Public(), now, now.Add(7*24*time.Hour))
	if err != nil {
		return err
	}

	now64 := nowMillis()
	payload, err := json.Marshal(struct {
		VerifyingKey string `json:"verifying_key"`
		DefaultRoom  string `json:"default_room"`
	}{VerifyingKey: allowed.VerifyingKey.String(), DefaultRoom: allowed.DefaultRoom.String()})
	if err != nil {
		return err
	}
	n := &graph.Node{ID: uid.MustNew(), RoomID: allowed.DefaultRoom, CDate: now64, MDate: now64, Entity: "AllowedPeer", JSON: payload}
	n.Sign(h.sk)
	if err := h.store.Submit(context.Background(), graph.WriteBatch{Nodes: []*graph.Node{n}}); err != nil {
		return err
	}
	h.dailyLog.Mark(allowed.DefaultRoom, "AllowedPeer", now64)
	return nil
}

// Fingerprint returns a quick SQL-side content fingerprint for every live
// row of entity within room (§6.3's hash UDF), used by the debug HTTP
// surface as an independent spot-check against internal/dailylog's rollup.
func (h *Handle) Fingerprint(ctx context.Context, room uid.Uid, entity string) (string, error) {
	return h.store.Fingerprint(ctx, room, entity)
}

// Rooms lists the ids of every room this node currently holds any data
// for, used by the "room" CLI subcommand.
func (h *Handle) Rooms(ctx context.Context) ([]string, error) {
	ids, err := h.store.RoomIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out, nil
}

// SubscribeForEvents returns a channel of local events and a cancel
// function to stop receiving them (§6.1 handle.subscribe_for_events()).
func (h *Handle) SubscribeForEvents() (<-chan events.Event, func()) {
	return h.bus.Subscribe(32)
}

// ListenAndServe binds addr and accepts incoming peer connections until ctx
// is cancelled, handshaking and synchronising every room this node shares
// with each connecting peer (§4.7).
func (h *Handle) ListenAndServe(ctx context.Context, addr string) error {
	tlsConf, err := transport.GenerateTLSConfig()
	if err != nil {
		return err
	}
	l, err := transport.Listen(addr, tlsConf, nil)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go h.serveConn(ctx, conn)
	}
}

func (h *Handle) serveConn(ctx context.Context, conn *transport.Conn) {
	sess := syncproto.NewSession(h.syncNode, conn)
	if err := sess.Handshake(ctx, identity.VerifyingKey{}); err != nil {
		h.zlog.Warn("inbound handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	sess.Start(ctx)
	if err := sess.SynchroniseAll(ctx); err != nil {
		h.zlog.Warn("inbound synchronisation failed", zap.Error(err))
	}
}

// Connect dials a peer at addr, proves identity (optionally pinning
// expectedKey), and synchronises every room both sides hold (§4.7). It
// blocks for one full synchronisation pass and then closes the session.
func (h *Handle) Connect(ctx context.Context, addr string, expectedKey *identity.VerifyingKey) error {
	var pin identity.VerifyingKey
	if expectedKey != nil {
		pin = *expectedKey
	}
	tlsConf := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"discret"}}
	conn, err := transport.Dial(ctx, addr, tlsConf, nil)
	if err != nil {
		return err
	}
	sess := syncproto.NewSession(h.syncNode, conn)
	if err := sess.Handshake(ctx, pin); err != nil {
		conn.Close()
		return err
	}
	sess.Start(ctx)
	defer sess.Close()
	return sess.SynchroniseAll(ctx)
}
