package recognizer

import (
	"sync"
	"sync/atomic"
)

// registration is one Add of a listener
type registration struct {
	listener Listener
	removed  atomic.Bool
}

// Registry is the set of listeners a dispatcher delivers to
type Registry struct {
	mu      sync.RWMutex
	entries []*registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers l; adding a listener twice has no effect
func (r *Registry) Add(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(l) >= 0 {
		return
	}
	r.entries = append(r.entries, &registration{listener: l})
}

// Remove unregisters l. Deliveries already queued skip l once Remove returns;
// a callback of l that is running is not interrupted. It never blocks, so a
// listener may remove itself or another listener from a callback.
func (r *Registry) Remove(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(l)
	if i < 0 {
		return
	}
	r.entries[i].removed.Store(true)
	// copy so snapshots taken earlier stay intact
	next := make([]*registration, 0, len(r.entries)-1)
	next = append(next, r.entries[:i]...)
	r.entries = append(next, r.entries[i+1:]...)
}

// Contains reports whether l is registered
func (r *Registry) Contains(l Listener) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(l) >= 0
}

// Snapshot returns the listeners in registration order
func (r *Registry) Snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Listener, len(r.entries))
	for i, reg := range r.entries {
		out[i] = reg.listener
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// registrations returns the current entries; the slice is never mutated in place
func (r *Registry) registrations() []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries
}

// call runs fn for reg unless reg was removed. It reports whether fn ran.
func (r *Registry) call(reg *registration, fn func(Listener)) bool {
	if reg.removed.Load() {
		return false
	}
	fn(reg.listener)
	return true
}

func (r *Registry) indexLocked(l Listener) int {
	for i, existing := range r.entries {
		if existing.listener == l {
			return i
		}
	}
	return -1
}
