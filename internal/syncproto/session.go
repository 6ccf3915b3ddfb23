package syncproto

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discretlib/discret/internal/dailylog"
	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/graph"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/model"
	"github.com/discretlib/discret/internal/roomlock"
	"github.com/discretlib/discret/internal/transport"
)

// DefaultMessageTimeout is the per-message timeout of §5: a query that
// receives no answer within this window fails with ErrTimeOut rather than
// blocking the session's serve loop indefinitely.
const DefaultMessageTimeout = 5 * time.Second

// ErrTimeOut is returned when a query receives no answer within the
// session's message timeout.
var ErrTimeOut = errors.New("syncproto: timed out waiting for answer")

// ErrSessionClosed is returned by calls made after Close.
var ErrSessionClosed = errors.New("syncproto: session closed")

// Node bundles the local state a Session needs to answer and issue
// queries: the data model, node/edge store, daily-log index, room locks,
// event bus and this peer's signing identity. One Node is shared by every
// Session a running process holds open.
type Node struct {
	Model    *model.DataModel
	Store    *graph.Store
	DailyLog *dailylog.Index
	Locks    *roomlock.Manager
	Bus      *events.Bus
	Identity *identity.SigningKey
	Logger   *logrus.Logger

	// SignatureWorkers bounds the signature-verification pool used while
	// ingesting synchronised rows (§4.9).
	SignatureWorkers int
}

// Session drives one peer connection's synchronisation lifecycle: the
// identity handshake, then concurrent query issuing (as initiator) and
// query serving (as responder) over the same transport.Conn, matching
// §4.7/§5's description of a session running both roles at once.
type Session struct {
	node *Node
	conn *transport.Conn

	remoteKey identity.VerifyingKey
	connID    string
	timeout   time.Duration

	nextID  uint64
	mu      sync.Mutex
	pending map[uint64]chan transport.Answer

	closing chan struct{}
	closeOnce sync.Once
	serveWG sync.WaitGroup
}

// NewSession wraps an already-connected transport.Conn. Handshake must be
// called before any other method.
func NewSession(node *Node, conn *transport.Conn) *Session {
	connID, err := randomChallenge()
	if err != nil {
		connID = nil
	}
	return &Session{
		node:    node,
		conn:    conn,
		connID:  hex.EncodeToString(connID),
		timeout: DefaultMessageTimeout,
		pending: make(map[uint64]chan transport.Answer),
		closing: make(chan struct{}),
	}
}

// Start launches the background loops that read answers (for calls this
// side issued) and read+serve incoming queries (for calls the remote
// issued). It must be called once, after Handshake succeeds.
func (s *Session) Start(ctx context.Context) {
	s.serveWG.Add(2)
	go s.readAnswers()
	go s.serveQueries(ctx)
}

// Close stops the session's background loops and tears down the
// connection. Any calls still waiting for an answer receive ErrSessionClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.conn.Close()
		if s.node.Bus != nil && !s.remoteKey.IsZero() {
			s.node.Bus.Publish(events.Event{
				Kind:   events.PeerDisconnected,
				Peer:   s.remoteKey,
				Time:   time.Now().UnixMilli(),
				ConnID: s.connID,
			})
		}
	})
	s.serveWG.Wait()
	return nil
}

// RemoteKey returns the peer's verifying key, valid once Handshake succeeds.
func (s *Session) RemoteKey() identity.VerifyingKey { return s.remoteKey }

// call sends a query and blocks for its answer, up to the session's
// per-message timeout (§5). It is safe to call concurrently.
func (s *Session) call(ctx context.Context, op Op, payload interface{}) (transport.Answer, error) {
	b, err := encodePayload(payload)
	if err != nil {
		return transport.Answer{}, err
	}
	id := atomic.AddUint64(&s.nextID, 1)
	ch := make(chan transport.Answer, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.conn.SendQuery(transport.Query{ID: id, Op: string(op), Payload: b}); err != nil {
		return transport.Answer{}, fmt.Errorf("syncproto: send %s: %w", op, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case a := <-ch:
		if a.Err != "" {
			return a, errors.New(a.Err)
		}
		return a, nil
	case <-timer.C:
		return transport.Answer{}, ErrTimeOut
	case <-ctx.Done():
		return transport.Answer{}, ctx.Err()
	case <-s.closing:
		return transport.Answer{}, ErrSessionClosed
	}
}

// readAnswers dispatches incoming Answer frames to the pending call that
// is waiting on their ID.
func (s *Session) readAnswers() {
	defer s.serveWG.Done()
	for {
		a, err := s.conn.RecvAnswer()
		if err != nil {
			s.failAllPending()
			return
		}
		s.mu.Lock()
		ch, ok := s.pending[a.ID]
		s.mu.Unlock()
		if ok {
			ch <- a
		}
	}
}

func (s *Session) failAllPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func randomChallenge() ([]byte, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	return b, err
}

func encodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
