// Package session owns the lifecycle of individual connections and the
// registry of live sessions. A session processes one state transition at a
// time and emits exactly one status event per transition.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kardosh/multisend/internal/model"
	"github.com/kardosh/multisend/internal/publish"
	"github.com/kardosh/multisend/internal/transport"
)

// legal enumerates the allowed transitions. Failed is reachable from any
// state and is handled separately.
var legal = map[model.SessionState][]model.SessionState{
	model.StateIdle:         {model.StateConnecting},
	model.StateConnecting:   {model.StateAwaitingAuth, model.StateConnected, model.StateClosed},
	model.StateAwaitingAuth: {model.StateConnected, model.StateClosed},
	model.StateConnected:    {model.StateReconnecting, model.StateClosed},
	model.StateReconnecting: {model.StateConnected, model.StateClosed},
}

// Session is one managed connection to the messaging network.
type Session struct {
	identity string
	pub      publish.Publisher

	mu           sync.Mutex
	state        model.SessionState
	conn         transport.Conn
	artifact     string
	connectedAt  time.Time
	lastActivity time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session in Idle. No event is emitted for the initial state.
func New(identity string, pub publish.Publisher) *Session {
	if pub == nil {
		pub = publish.Nop{}
	}
	return &Session{
		identity: identity,
		pub:      pub,
		state:    model.StateIdle,
		done:     make(chan struct{}),
	}
}

func (s *Session) Identity() string { return s.identity }

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Artifact returns the pending QR or pairing code, empty outside
// AwaitingAuth.
func (s *Session) Artifact() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Status returns the caller-visible snapshot.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.SessionStatus{
		Identity:  s.identity,
		Connected: s.state == model.StateConnected,
		State:     s.state,
	}
	if !s.connectedAt.IsZero() {
		t := s.connectedAt
		st.ConnectedAt = &t
	}
	if !s.lastActivity.IsZero() {
		t := s.lastActivity
		st.LastActivity = &t
	}
	return st
}

// transition must be called with s.mu held.
func (s *Session) transition(to model.SessionState, detail string) error {
	allowed := false
	for _, next := range legal[s.state] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("session %s: illegal transition %s -> %s", s.identity, s.state, to)
	}
	s.state = to
	s.pub.Publish(s.identity, publish.Event{
		Identity: s.identity,
		State:    to,
		Detail:   detail,
		At:       time.Now().UTC(),
	})
	return nil
}

// ToConnecting moves Idle -> Connecting.
func (s *Session) ToConnecting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(model.StateConnecting, "")
}

// ToAwaitingAuth records a handshake artifact (QR data URL or pairing
// code) and moves to AwaitingAuth. Calling it again while already waiting
// just refreshes the artifact.
func (s *Session) ToAwaitingAuth(artifact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.StateAwaitingAuth {
		s.artifact = artifact
		return nil
	}
	if err := s.transition(model.StateAwaitingAuth, ""); err != nil {
		return err
	}
	s.artifact = artifact
	return nil
}

// ToConnected takes ownership of the live connection and clears any
// pending artifact.
func (s *Session) ToConnected(conn transport.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(model.StateConnected, ""); err != nil {
		return err
	}
	s.conn = conn
	s.artifact = ""
	now := time.Now().UTC()
	s.connectedAt = now
	s.lastActivity = now
	return nil
}

// ToReconnecting releases the dead connection and marks the session as
// retrying.
func (s *Session) ToReconnecting(detail string) error {
	s.mu.Lock()
	old := s.conn
	s.conn = nil
	err := s.transition(model.StateReconnecting, detail)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return err
}

// Close moves the session to Closed and releases the transport handle.
// Safe to call from any non-terminal state; on an already-terminal session
// it is a no-op.
func (s *Session) Close(detail string) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	old := s.conn
	s.conn = nil
	s.artifact = ""
	_ = s.transition(model.StateClosed, detail)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// Fail moves the session to Failed from any state and releases the
// transport handle.
func (s *Session) Fail(detail string) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	old := s.conn
	s.conn = nil
	s.artifact = ""
	s.state = model.StateFailed
	s.pub.Publish(s.identity, publish.Event{
		Identity: s.identity,
		State:    model.StateFailed,
		Detail:   detail,
		At:       time.Now().UTC(),
	})
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// Disconnect is the caller-initiated hard cancel: logout, release the
// handle, and move to Closed regardless of in-flight work.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	old := s.conn
	s.conn = nil
	s.artifact = ""
	_ = s.transition(model.StateClosed, "disconnected by caller")
	s.mu.Unlock()

	if old != nil {
		_ = old.Logout(ctx)
		_ = old.Close()
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// Send borrows the connection for a single attempt. The session lock is
// never held across the network call.
func (s *Session) Send(ctx context.Context, target string, p transport.Payload) (string, error) {
	s.mu.Lock()
	if s.state != model.StateConnected || s.conn == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s is %s", model.ErrNoActiveSession, s.identity, s.state)
	}
	conn := s.conn
	s.mu.Unlock()

	id, err := conn.Send(ctx, target, p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrTransientSend, err)
	}

	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
	return id, nil
}

// currentConn returns the owned connection, or nil.
func (s *Session) currentConn() transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
