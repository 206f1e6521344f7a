package watch

import (
	"sync"
	"time"
)

// buffer coalesces events per path and drains after a quiet interval
// with no new events for any path. The coalescing precedence:
//
//   - any DELETE after any ADD/MODIFY collapses to DELETE
//   - any number of MODIFY collapses to a single MODIFY
//   - an ADD followed by MODIFY stays ADD
//   - a DELETE followed by ADD becomes MODIFY (the file was replaced)
type buffer struct {
	window  time.Duration
	hardCap int

	mu      sync.Mutex
	pending map[string]*bufferedEvent
	timer   *time.Timer
	stopped bool

	drained chan []Event
}

type bufferedEvent struct {
	ev   Event
	kind Kind
}

func newBuffer(window time.Duration, hardCap int) *buffer {
	return &buffer{
		window:  window,
		hardCap: hardCap,
		pending: make(map[string]*bufferedEvent),
		drained: make(chan []Event, 4),
	}
}

// add coalesces ev into the buffer and (re)arms the quiet-interval
// timer. It returns false when the buffer has exceeded its hard cap, in
// which case the buffer is cleared and the caller should fall back to a
// full reconciliation.
func (b *buffer) add(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return true
	}

	if existing, ok := b.pending[ev.Path]; ok {
		existing.kind = coalesce(existing.kind, ev.Kind)
	} else {
		b.pending[ev.Path] = &bufferedEvent{ev: ev, kind: ev.Kind}
	}

	if len(b.pending) > b.hardCap {
		b.pending = make(map[string]*bufferedEvent)
		if b.timer != nil {
			b.timer.Stop()
		}
		return false
	}

	// Any event for any path restarts the quiet interval.
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.window, b.flush)
	return true
}

// coalesce applies the precedence table to (first..., next).
func coalesce(current, next Kind) Kind {
	switch current {
	case KindAdd:
		switch next {
		case KindModify:
			return KindAdd
		case KindDelete:
			return KindDelete
		}
	case KindModify:
		return next
	case KindDelete:
		if next == KindAdd {
			return KindModify
		}
		return next
	}
	return next
}

func (b *buffer) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || len(b.pending) == 0 {
		return
	}
	batch := make([]Event, 0, len(b.pending))
	for _, be := range b.pending {
		ev := be.ev
		ev.Kind = be.kind
		batch = append(batch, ev)
	}
	select {
	case b.drained <- batch:
		b.pending = make(map[string]*bufferedEvent)
	default:
		// The drain consumer is behind; hold the batch and retry after
		// another quiet interval.
		b.timer = time.AfterFunc(b.window, b.flush)
	}
}

// size reports the current pending count.
func (b *buffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *buffer) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
	close(b.drained)
}
