// Package signal implements the append-only signal stream: every kernel
// mutation record, fanned out to subscribers with history replay and
// live tailing.
package signal

import (
	"sync"

	"github.com/danshapiro/fxd/internal/graph"
)

// Broadcaster is a graph.Sink that appends every record to an in-memory
// history and fans it out to subscribers: a mutex-protected history slice
// plus a map of per-subscriber buffered channels, replay-then-live
// semantics, and slow subscribers dropped rather than allowed to block
// Append.
type Broadcaster struct {
	mu      sync.Mutex
	history []graph.Record
	clients map[uint64]chan graph.Record
	nextID  uint64
	closed  bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[uint64]chan graph.Record)}
}

// Append implements graph.Sink. It must never block on a slow subscriber:
// a client whose buffer is full is dropped, not awaited.
func (b *Broadcaster) Append(rec graph.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.history = append(b.history, rec)
	for id, ch := range b.clients {
		select {
		case ch <- rec:
		default:
			close(ch)
			delete(b.clients, id)
		}
	}
	return nil
}

// Cursor is an opaque position in the history, usable with Subscribe's
// fromCursor to resume after a prior session.
type Cursor int

// Len returns the number of records currently in history, usable as the
// cursor for Tail, which subscribes with fromCursor pinned to the
// broadcaster's current history length.
func (b *Broadcaster) Len() Cursor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Cursor(len(b.history))
}

// Subscribe returns a channel replaying every record from fromCursor
// onward, then delivering live records as they're appended, plus an
// unsubscribe func. The channel is sized to hold the full backlog so
// replay never blocks while holding the lock.
func (b *Broadcaster) Subscribe(fromCursor Cursor) (<-chan graph.Record, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := int(fromCursor)
	if start < 0 {
		start = 0
	}
	if start > len(b.history) {
		start = len(b.history)
	}
	backlog := b.history[start:]

	ch := make(chan graph.Record, len(backlog)+256)
	for _, rec := range backlog {
		ch <- rec
	}

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.clients[id] = ch
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
	}
	return ch, unsub
}

// Tail subscribes starting from the current end of history, so the
// caller only observes records appended after this call.
func (b *Broadcaster) Tail() (<-chan graph.Record, func()) {
	return b.Subscribe(b.Len())
}

// History returns a copy of every record appended so far.
func (b *Broadcaster) History() []graph.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]graph.Record, len(b.history))
	copy(out, b.history)
	return out
}

// Close stops accepting new records and closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}
