// Package roomlock implements Discret's room locking and signature-pool
// primitives (C9): per-room mutual exclusion bounded by a global
// concurrent-synchronisation limit, and a bounded worker pool for
// signature verification.
package roomlock

import (
	"context"
	"sync"

	"github.com/discretlib/discret/internal/uid"
)

// Manager grants exclusive access to one room at a time while bounding how
// many rooms may be synchronised concurrently across the whole node
// (max_concurrent_synchronisation, §4.7). Waiters queue FIFO per room via a
// channel-based mutex, which Go's runtime services in roughly arrival
// order.
type Manager struct {
	sem   chan struct{}
	mu    sync.Mutex
	locks map[uid.Uid]chan struct{}
}

// NewManager returns a Manager allowing up to maxConcurrent rooms to be
// locked at once.
func NewManager(maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Manager{
		sem:   make(chan struct{}, maxConcurrent),
		locks: make(map[uid.Uid]chan struct{}),
	}
}

// Release unlocks a room previously locked with Lock.
type Release func()

// Lock blocks until both a free global synchronisation slot and the named
// room's lock are available, or ctx is cancelled. The returned Release must
// be called exactly once to give both back up.
func (m *Manager) Lock(ctx context.Context, room uid.Uid) (Release, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	roomCh := m.roomChan(room)
	select {
	case roomCh <- struct{}{}:
	case <-ctx.Done():
		<-m.sem
		return nil, ctx.Err()
	}

	inFlightSyncs.Inc()
	released := false
	return func() {
		if released {
			return
		}
		released = true
		inFlightSyncs.Dec()
		<-roomCh
		<-m.sem
	}, nil
}

func (m *Manager) roomChan(room uid.Uid) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[room]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[room] = ch
	}
	return ch
}
