package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/kardosh/multisend/internal/backoff"
	"github.com/kardosh/multisend/internal/credstore"
	"github.com/kardosh/multisend/internal/transport"
)

// SuperviseDeps are the collaborators the reconnect loop needs.
type SuperviseDeps struct {
	Dialer      transport.Dialer
	Creds       credstore.Store
	Registry    *Registry
	Backoff     backoff.Strategy
	MaxAttempts int
	DialTimeout time.Duration
}

// Supervise watches a connected session's transport events until the
// session terminates: it persists credential refreshes, reconnects after
// transient closes with a bounded backoff schedule, and stops permanently
// on an explicit-logout close or caller disconnect.
//
// Run in its own goroutine once the session is Connected.
func (s *Session) Supervise(ctx context.Context, deps SuperviseDeps) {
	log := slog.With("identity", s.identity)

	conn := s.currentConn()
	for conn != nil {
		u, ok := <-conn.Updates()
		if !s.stillOwns(conn) {
			// Disconnected or replaced while we were blocked; nothing
			// left to supervise for this handle.
			return
		}
		if !ok {
			// Channel closed without a close event: treat as a transient
			// drop.
			u = transport.Update{Closed: true, Reason: transport.CloseUnknown}
		}

		switch {
		case u.Creds != nil:
			if err := deps.Creds.Save(ctx, s.identity, u.Creds); err != nil {
				log.Error("credential refresh not persisted", "err", err)
			}
			continue

		case u.Closed:
			if u.Reason.Terminal() {
				log.Info("session logged out, closing")
				s.Close("logged out")
				deps.Registry.Drop(s)
				return
			}
			if err := s.ToReconnecting("transport closed"); err != nil {
				// Already terminal (caller disconnect raced the close).
				return
			}
			next := s.reconnect(ctx, deps, log)
			if next == nil {
				deps.Registry.Drop(s)
				return
			}
			conn = next

		default:
			// QR or duplicate connected updates after the handshake carry
			// no lifecycle meaning here.
			continue
		}
	}
}

func (s *Session) stillOwns(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.state.Terminal() && (s.conn == conn || s.conn == nil)
}

// reconnect runs the bounded redial schedule. Returns the new connection,
// or nil when the session has been failed or closed.
func (s *Session) reconnect(ctx context.Context, deps SuperviseDeps, log *slog.Logger) transport.Conn {
	for attempt := 1; attempt <= deps.MaxAttempts; attempt++ {
		delay := deps.Backoff.Delay(attempt)
		log.Info("reconnect attempt scheduled", "attempt", attempt, "delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Close("shutdown")
			return nil
		case <-s.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.redial(ctx, deps)
		if err != nil {
			log.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
			continue
		}
		if err := s.ToConnected(conn); err != nil {
			// Caller disconnect won the race; release the fresh handle.
			_ = conn.Close()
			return nil
		}
		log.Info("reconnected", "attempt", attempt)
		return conn
	}

	log.Warn("reconnect attempts exhausted", "attempts", deps.MaxAttempts)
	s.Fail("reconnect attempts exhausted")
	return nil
}

// redial dials and waits for the handshake to complete using the stored
// credential. A handshake that asks for a new QR scan cannot be completed
// automatically and counts as a failed attempt.
func (s *Session) redial(ctx context.Context, deps SuperviseDeps) (transport.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, deps.DialTimeout)
	defer cancel()

	cred, err := deps.Creds.Load(dialCtx, s.identity)
	if err != nil {
		return nil, err
	}

	conn, err := deps.Dialer.Dial(dialCtx, s.identity, cred)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-dialCtx.Done():
			_ = conn.Close()
			return nil, dialCtx.Err()
		case u, ok := <-conn.Updates():
			if !ok {
				return nil, transport.ErrHandshakeClosed
			}
			switch {
			case u.Creds != nil:
				if err := deps.Creds.Save(dialCtx, s.identity, u.Creds); err != nil {
					slog.Error("credential refresh not persisted", "identity", s.identity, "err", err)
				}
			case u.Connected:
				return conn, nil
			case u.QR != "":
				// Re-auth required; not something a background retry can
				// satisfy.
				_ = conn.Close()
				return nil, transport.ErrReauthRequired
			case u.Closed:
				_ = conn.Close()
				return nil, transport.ErrHandshakeClosed
			}
		}
	}
}
