package session

import (
	"sync"

	"github.com/tnpilot/tnpilot/internal/terminal"
)

// Broadcaster fans published screens out to any number of observers.
// Each observer channel holds at most one pending screen: when an observer
// falls behind, the stale pending snapshot is replaced by the newer one, so
// a slow observer skips intermediate versions but always converges on the
// latest. Delivered versions are therefore strictly increasing per observer.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int64]chan terminal.Screen
	seq    int64
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int64]chan terminal.Screen)}
}

// Subscribe registers an observer. The returned cancel func removes it; it
// is safe to call more than once. The channel is closed on cancel or when
// the broadcaster shuts down.
func (b *Broadcaster) Subscribe() (<-chan terminal.Screen, func()) {
	ch := make(chan terminal.Screen, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}

// Publish delivers scr to every observer, coalescing over any undelivered
// older snapshot. Publications must arrive in version order; the session
// guarantees that by publishing under its write lock.
func (b *Broadcaster) Publish(scr terminal.Screen) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- scr:
		default:
			// Observer has an undelivered snapshot; replace it. The
			// drain and re-send cannot block: we are the only sender
			// and the channel has capacity one.
			select {
			case <-ch:
			default:
			}
			ch <- scr
		}
	}
}

func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
