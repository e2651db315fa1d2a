// Package gesture holds the unlock/resume callback slots used to
// satisfy platform autoplay policies.
//
// Some platforms refuse autoplay unless specific playback calls run
// synchronously inside a user input event. The active backend installs
// an unlock callback here; the coordinator invokes it inline during a
// user-initiated play, before control returns to the event loop. The
// resume slot recovers playback silently suspended while the
// application was backgrounded.
package gesture

import "sync"

// Registry holds the two named callback slots. A single backend owns
// the slots at a time: registering overwrites, unregistering restores
// a no-op.
type Registry struct {
	mu     sync.Mutex
	unlock func()
	resume func()
}

// NewRegistry creates an empty registry. Both slots start as no-ops.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetUnlock installs the unlock callback, replacing any previous one.
func (r *Registry) SetUnlock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlock = fn
}

// SetResume installs the resume callback, replacing any previous one.
func (r *Registry) SetResume(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resume = fn
}

// Clear resets both slots to no-ops. Called on backend teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlock = nil
	r.resume = nil
}

// Unlock invokes the unlock callback synchronously. Must be called on
// the stack of the originating user gesture, never deferred behind a
// timer.
func (r *Registry) Unlock() {
	r.mu.Lock()
	fn := r.unlock
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Resume invokes the resume callback, if any. Called when the
// application regains foreground visibility.
func (r *Registry) Resume() {
	r.mu.Lock()
	fn := r.resume
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}
