// Package auth drives the authentication handshake that moves a session
// from unauthenticated to Connected, via QR scan or pairing code.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kardosh/multisend/internal/credstore"
	"github.com/kardosh/multisend/internal/model"
	"github.com/kardosh/multisend/internal/publish"
	"github.com/kardosh/multisend/internal/session"
	"github.com/kardosh/multisend/internal/transport"
)

// Config bounds the handshake.
type Config struct {
	// Timeout is the overall handshake bound, measured from Connecting
	// entry.
	Timeout time.Duration
	// ArtifactWait is when a pending QR artifact is returned to the
	// caller while the handshake keeps running.
	ArtifactWait time.Duration
}

// DefaultConfig matches the network's 60s handshake window with the 30s
// artifact fallback.
func DefaultConfig() Config {
	return Config{Timeout: 60 * time.Second, ArtifactWait: 30 * time.Second}
}

// Result is the caller-visible outcome of a connect request.
type Result struct {
	Identity     string             `json:"identity"`
	State        model.SessionState `json:"state"`
	Connected    bool               `json:"connected"`
	AuthArtifact string             `json:"authArtifact,omitempty"`
	Message      string             `json:"message"`
}

// Controller owns handshakes. Successful handshakes hand the connected
// session over to its supervision loop.
type Controller struct {
	dialer transport.Dialer
	creds  credstore.Store
	reg    *session.Registry
	pub    publish.Publisher
	cfg    Config
	sup    session.SuperviseDeps
}

func NewController(
	dialer transport.Dialer,
	creds credstore.Store,
	reg *session.Registry,
	pub publish.Publisher,
	cfg Config,
	sup session.SuperviseDeps,
) *Controller {
	return &Controller{dialer: dialer, creds: creds, reg: reg, pub: pub, cfg: cfg, sup: sup}
}

// Connect starts (or reports) a session for the identity.
//
// An identity that is already Connected gets its current status back. An
// identity whose handshake is still in flight gets AlreadyActive. Otherwise
// a fresh session is registered and the handshake runs: the call returns
// when the session connects, when the handshake fails or times out, or at
// the artifact-fallback mark with the pending QR code while the handshake
// continues in the background.
func (c *Controller) Connect(ctx context.Context, identity string) (Result, error) {
	if transport.BarePhone(identity) == "" {
		return Result{}, fmt.Errorf("%w: identity %q", model.ErrInvalidTarget, identity)
	}

	if existing, ok := c.reg.Lookup(identity); ok && !existing.State().Terminal() {
		if existing.State() == model.StateConnected {
			return Result{
				Identity:  identity,
				State:     model.StateConnected,
				Connected: true,
				Message:   "already connected",
			}, nil
		}
		return Result{}, fmt.Errorf("%w: %s is %s", model.ErrAlreadyActive, identity, existing.State())
	}

	s := session.New(identity, c.pub)
	if err := c.reg.Register(s); err != nil {
		return Result{}, err
	}
	if err := s.ToConnecting(); err != nil {
		c.reg.Drop(s)
		return Result{}, err
	}
	started := time.Now()

	cred, err := c.creds.Load(ctx, identity)
	if err != nil {
		c.abort(s, nil, "credential load failed")
		return Result{}, err
	}

	conn, err := c.dialer.Dial(ctx, identity, cred)
	if err != nil {
		c.abort(s, nil, "dial failed")
		return Result{}, fmt.Errorf("%w: dial: %v", model.ErrAuthFailed, err)
	}

	fallback := time.NewTimer(c.cfg.ArtifactWait)
	defer fallback.Stop()
	overall := time.NewTimer(c.cfg.Timeout)
	defer overall.Stop()

	for {
		select {
		case <-ctx.Done():
			c.abort(s, conn, "caller gone")
			return Result{}, fmt.Errorf("%w: %v", model.ErrAuthFailed, ctx.Err())

		case <-overall.C:
			c.abort(s, conn, "handshake timeout")
			return Result{}, fmt.Errorf("%w: after %s", model.ErrAuthTimeout, c.cfg.Timeout)

		case <-fallback.C:
			if artifact := s.Artifact(); artifact != "" {
				// Hand the rest of the handshake to the background and
				// give the caller the scannable code now.
				go c.finishHandshake(s, conn, c.cfg.Timeout-time.Since(started))
				return Result{
					Identity:     identity,
					State:        model.StateAwaitingAuth,
					AuthArtifact: artifact,
					Message:      "scan the code to connect",
				}, nil
			}
			// No artifact yet; keep waiting for the overall bound.

		case u, ok := <-conn.Updates():
			done, res, err := c.step(s, conn, identity, u, ok)
			if done {
				return res, err
			}
		}
	}
}

// step processes one handshake update. done reports that the handshake
// finished one way or the other.
func (c *Controller) step(s *session.Session, conn transport.Conn, identity string, u transport.Update, ok bool) (bool, Result, error) {
	if !ok {
		c.abort(s, conn, "connection lost")
		return true, Result{}, fmt.Errorf("%w: connection closed during handshake", model.ErrAuthFailed)
	}

	switch {
	case u.Creds != nil:
		// Credentials must be durable before the session goes Connected.
		if err := c.creds.Save(context.Background(), identity, u.Creds); err != nil {
			c.abort(s, conn, "credential save failed")
			return true, Result{}, err
		}

	case u.QR != "":
		artifact, err := renderQR(u.QR)
		if err != nil {
			slog.Error("qr render failed", "identity", identity, "err", err)
			break
		}
		if err := s.ToAwaitingAuth(artifact); err != nil {
			slog.Warn("qr artifact ignored", "identity", identity, "err", err)
		}

	case u.Connected:
		if err := s.ToConnected(conn); err != nil {
			c.abort(s, conn, "connect race")
			return true, Result{}, fmt.Errorf("%w: %v", model.ErrAuthFailed, err)
		}
		go s.Supervise(context.Background(), c.sup)
		return true, Result{
			Identity:  identity,
			State:     model.StateConnected,
			Connected: true,
			Message:   "connected",
		}, nil

	case u.Closed:
		c.abort(s, conn, "closed during handshake")
		if u.Reason.Terminal() {
			return true, Result{}, fmt.Errorf("%w: logged out, scan the code again", model.ErrAuthFailed)
		}
		return true, Result{}, fmt.Errorf("%w: connection failed, try again", model.ErrAuthFailed)
	}

	return false, Result{}, nil
}

// finishHandshake keeps consuming updates after the artifact fallback
// until the remaining handshake window runs out.
func (c *Controller) finishHandshake(s *session.Session, conn transport.Conn, remaining time.Duration) {
	overall := time.NewTimer(remaining)
	defer overall.Stop()

	identity := s.Identity()
	for {
		select {
		case <-overall.C:
			slog.Warn("handshake timed out awaiting scan", "identity", identity)
			c.abort(s, conn, "handshake timeout")
			return

		case <-s.Done():
			// Caller disconnected the pending session.
			_ = conn.Close()
			return

		case u, ok := <-conn.Updates():
			done, res, err := c.step(s, conn, identity, u, ok)
			if !done {
				continue
			}
			if err != nil {
				slog.Warn("handshake failed after fallback", "identity", identity, "err", err)
			} else {
				slog.Info("handshake completed after fallback", "identity", identity, "state", res.State)
			}
			return
		}
	}
}

// RequestPairingCode starts a handshake that authenticates with a textual
// code instead of a QR scan. Refused when the identity already holds a
// credential.
func (c *Controller) RequestPairingCode(ctx context.Context, identity string) (string, error) {
	if transport.BarePhone(identity) == "" {
		return "", fmt.Errorf("%w: identity %q", model.ErrInvalidTarget, identity)
	}

	cred, err := c.creds.Load(ctx, identity)
	if err != nil {
		return "", err
	}
	if cred != nil {
		return "", fmt.Errorf("%w: %s is already registered", model.ErrAuthFailed, identity)
	}

	if existing, ok := c.reg.Lookup(identity); ok && !existing.State().Terminal() {
		return "", fmt.Errorf("%w: %s is %s", model.ErrAlreadyActive, identity, existing.State())
	}

	s := session.New(identity, c.pub)
	if err := c.reg.Register(s); err != nil {
		return "", err
	}
	if err := s.ToConnecting(); err != nil {
		c.reg.Drop(s)
		return "", err
	}

	conn, err := c.dialer.Dial(ctx, identity, nil)
	if err != nil {
		c.abort(s, nil, "dial failed")
		return "", fmt.Errorf("%w: dial: %v", model.ErrAuthFailed, err)
	}

	code, err := conn.RequestPairingCode(ctx, transport.BarePhone(identity))
	if err != nil {
		c.abort(s, conn, "pairing code request failed")
		return "", fmt.Errorf("%w: pairing code: %v", model.ErrAuthFailed, err)
	}

	if err := s.ToAwaitingAuth(code); err != nil {
		c.abort(s, conn, "pairing race")
		return "", err
	}

	go c.finishHandshake(s, conn, c.cfg.Timeout)
	return code, nil
}

// abort fails the session, removes it from the registry, and releases the
// connection if one was opened.
func (c *Controller) abort(s *session.Session, conn transport.Conn, detail string) {
	s.Fail(detail)
	c.reg.Drop(s)
	if conn != nil {
		_ = conn.Close()
	}
}
