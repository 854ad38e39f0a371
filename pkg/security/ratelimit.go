package security

import (
	"sync"
	"time"
)

// slidingWindow tracks request timestamps per client and admits a request
// only while fewer than max requests fall inside the window.
type slidingWindow struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:     max,
		window:  window,
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

// allow records the request when admitted and reports the decision plus the
// in-window request count at decision time.
func (w *slidingWindow) allow(clientID string) (bool, int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	recent := w.history[clientID][:0]
	for _, at := range w.history[clientID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= w.max {
		w.history[clientID] = recent
		return false, len(recent)
	}

	w.history[clientID] = append(recent, now)
	return true, len(recent) + 1
}

// tracked reports how many client windows currently hold entries.
func (w *slidingWindow) tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.history)
}
