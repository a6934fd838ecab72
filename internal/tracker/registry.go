package tracker

import (
	"sync"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

// Registry maps window handles to their last observed state. One writer (the
// monitor) and any number of readers may use it concurrently; every
// operation is a single exclusive critical section.
type Registry struct {
	mu      sync.Mutex
	windows map[window.Handle]window.Info
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[window.Handle]window.Info)}
}

// Upsert records info for h, replacing any previous entry.
func (r *Registry) Upsert(h window.Handle, info window.Info) {
	r.mu.Lock()
	r.windows[h] = info
	r.mu.Unlock()
}

// Remove deletes h. It reports whether an entry was present.
func (r *Registry) Remove(h window.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[h]; !ok {
		return false
	}
	delete(r.windows, h)
	return true
}

// Len returns the number of tracked windows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// Snapshot copies every entry under a single lock acquisition.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.windows))
	for h, info := range r.windows {
		entries = append(entries, Entry{Handle: h, Info: info})
	}
	r.mu.Unlock()
	return newSnapshot(entries)
}
