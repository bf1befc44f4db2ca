package session

import (
	"fmt"
	"sync"

	"github.com/kardosh/multisend/internal/model"
)

// Registry is the single source of truth for live sessions. One mutex
// guards the map; it is never held across network I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register claims the identity for the given session. A non-terminal
// session already holding the identity wins; terminal leftovers are
// replaced.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[s.identity]; ok && !existing.State().Terminal() {
		return fmt.Errorf("%w: %s", model.ErrAlreadyActive, s.identity)
	}
	r.sessions[s.identity] = s
	return nil
}

// Lookup returns the current session for the identity.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// Remove deletes the identity's entry. Idempotent.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identity)
}

// Drop removes the entry only if it still points at the given session, so
// a stale goroutine cannot evict a fresh session for the same identity.
func (r *Registry) Drop(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.identity]; ok && current == s {
		delete(r.sessions, s.identity)
	}
}

// List returns a snapshot of identities currently in Connected state.
func (r *Registry) List() []string {
	var out []string
	for _, s := range r.snapshot() {
		if s.State() == model.StateConnected {
			out = append(out, s.identity)
		}
	}
	return out
}

// Pick selects a session for a dispatch attempt: the preferred identity if
// it is Connected, otherwise any Connected session.
func (r *Registry) Pick(preferred string) (*Session, error) {
	if preferred != "" {
		if s, ok := r.Lookup(preferred); ok && s.State() == model.StateConnected {
			return s, nil
		}
	}
	for _, s := range r.snapshot() {
		if s.State() == model.StateConnected {
			return s, nil
		}
	}
	return nil, model.ErrNoActiveSession
}

// Terminal returns the identities of sessions that reached a terminal
// state and can be evicted.
func (r *Registry) Terminal() []string {
	var out []string
	for _, s := range r.snapshot() {
		if s.State().Terminal() {
			out = append(out, s.identity)
		}
	}
	return out
}

// Sessions returns a snapshot of all registered sessions in any state.
func (r *Registry) Sessions() []*Session {
	return r.snapshot()
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every live session and empties the registry. Used on
// shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.snapshot() {
		s.Close("shutdown")
	}
	r.mu.Lock()
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
}
