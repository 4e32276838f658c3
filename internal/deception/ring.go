package deception

import "sync"

// eventRing is a fixed-capacity ring buffer of connection events so the
// audit log stays bounded regardless of attack volume. Oldest entries are
// evicted first.
type eventRing struct {
	mu   sync.RWMutex
	buf  []ConnectionEvent
	next int
	size int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 500
	}
	return &eventRing{buf: make([]ConnectionEvent, capacity)}
}

func (r *eventRing) Append(ev ConnectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Recent returns up to limit events, newest last.
func (r *eventRing) Recent(limit int) []ConnectionEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}

	out := make([]ConnectionEvent, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *eventRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
