package response

import (
	"sync"
	"time"
)

// sourceTracker keeps per-source trigger timestamps inside a trailing
// window, supplying the rollup statistics the scorer context needs.
type sourceTracker struct {
	mu       sync.Mutex
	window   time.Duration
	bySource map[string][]time.Time
}

func newSourceTracker(window time.Duration) *sourceTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &sourceTracker{
		window:   window,
		bySource: make(map[string][]time.Time),
	}
}

// observe records one trigger and returns (earlier triggers from the same
// source in the window, total triggers in the window including this one,
// distinct sources in the window).
func (t *sourceTracker) observe(source string, now time.Time) (repeats, recent, distinct int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.window)
	for src, times := range t.bySource {
		kept := times[:0]
		for _, ts := range times {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(t.bySource, src)
			continue
		}
		t.bySource[src] = kept
	}

	repeats = len(t.bySource[source])
	t.bySource[source] = append(t.bySource[source], now)

	for _, times := range t.bySource {
		recent += len(times)
	}
	distinct = len(t.bySource)
	return repeats, recent, distinct
}
