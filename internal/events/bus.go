// Package events implements Discret's local event bus and invite lifecycle
// (C10): the PeerConnected/PeerDisconnected/RoomSynchronized/RoomModified/
// ComputedDailyLog events of spec.md §6.2, and OwnedInvite/Invite/
// AllowedPeer materialisation.
package events

import (
	"sync"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// Kind enumerates the event types a subscriber can observe.
type Kind int

const (
	PeerConnected Kind = iota
	PeerDisconnected
	RoomSynchronized
	RoomModified
	ComputedDailyLog
)

func (k Kind) String() string {
	switch k {
	case PeerConnected:
		return "PeerConnected"
	case PeerDisconnected:
		return "PeerDisconnected"
	case RoomSynchronized:
		return "RoomSynchronized"
	case RoomModified:
		return "RoomModified"
	case ComputedDailyLog:
		return "ComputedDailyLog"
	default:
		return "Unknown"
	}
}

// Event is one notification delivered to subscribers. Fields not relevant
// to Kind are left zero. Time is unix milliseconds; ConnID identifies the
// transport connection a Peer(Dis)connected event concerns; RoomSummary and
// Result carry a human-readable gloss of a RoomModified/ComputedDailyLog
// event rather than the full row data, which a subscriber re-reads via
// query if it needs it.
type Event struct {
	Kind        Kind
	Peer        identity.VerifyingKey
	Room        uid.Uid
	Entity      string
	Time        int64
	ConnID      string
	RoomSummary string
	Result      string
}

// Bus is a simple fan-out local event bus: internal components Publish,
// embedders Subscribe via the top-level API (§6.1 subscribe_for_events).
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel and a cancel
// function. The channel is buffered so a slow subscriber cannot block
// publishers; events are dropped for a subscriber whose buffer is full.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber, non-blockingly.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
