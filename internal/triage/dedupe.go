package triage

import "sync"

// DedupCapacity is how many recent event identifiers the pipeline remembers.
const DedupCapacity = 1000

// Window is a fixed-capacity FIFO membership set over event identifiers.
// The first observation of an identifier admits it; repeats are rejected
// until the identifier has been evicted. Eviction is purely capacity-driven:
// when full, the oldest identifier leaves regardless of how recently it was
// observed. Safe for concurrent use.
type Window struct {
	mu   sync.Mutex
	ring []string
	next int
	full bool
	seen map[string]struct{}
}

// NewWindow creates a Window remembering the most recent capacity identifiers.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		ring: make([]string, capacity),
		seen: make(map[string]struct{}, capacity),
	}
}

// Observe records the identifier and reports whether it is new. Returns true
// the first time an identifier is seen, false on any repeat still inside the
// window. A duplicate does not refresh the identifier's position.
func (w *Window) Observe(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return false
	}

	if w.full {
		delete(w.seen, w.ring[w.next])
	}
	w.ring[w.next] = id
	w.seen[id] = struct{}{}

	w.next++
	if w.next == len(w.ring) {
		w.next = 0
		w.full = true
	}
	return true
}

// Len reports how many identifiers are currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
