// Package timers provides a purpose-keyed registry for the engine's deferred
// work: reconnect backoff, stall watchdog, canvas edit debounce. Keeping them
// in one place gives conversation teardown a single CancelAll, so no timer
// belonging to an abandoned conversation can fire afterwards.
package timers

import (
	"sync"
	"time"
)

// Registry tracks at most one pending timer per purpose.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms a timer for the given purpose, replacing any pending timer
// with the same purpose. The callback runs on its own goroutine after d.
func (r *Registry) Schedule(purpose string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[purpose]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		// A replacement may have been scheduled between fire and lock
		// acquisition; only the current owner removes the entry.
		if r.timers[purpose] == timer {
			delete(r.timers, purpose)
		}
		r.mu.Unlock()
		fn()
	})
	r.timers[purpose] = timer
}

// Cancel stops the pending timer for a purpose. It reports whether a timer
// was pending.
func (r *Registry) Cancel(purpose string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[purpose]
	if !ok {
		return false
	}
	delete(r.timers, purpose)
	return t.Stop()
}

// CancelAll stops every pending timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for purpose, t := range r.timers {
		t.Stop()
		delete(r.timers, purpose)
	}
}

// Pending reports whether a timer for the purpose is armed.
func (r *Registry) Pending(purpose string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.timers[purpose]
	return ok
}
