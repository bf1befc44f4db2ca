// Package transporttest provides in-memory fakes for the transport
// collaborator interfaces.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kardosh/multisend/internal/transport"
)

// Conn is a scriptable fake connection. Tests drive the handshake by
// pushing updates.
type Conn struct {
	updates chan transport.Update

	// SendFunc overrides Send. Defaults to success with a generated ID.
	SendFunc func(ctx context.Context, target string, p transport.Payload) (string, error)
	// PairFunc overrides RequestPairingCode. Defaults to "ABCD-1234".
	PairFunc func(ctx context.Context, phone string) (string, error)

	sends     atomic.Int64
	loggedOut atomic.Bool
	closed    atomic.Bool

	closeOnce sync.Once
}

func NewConn() *Conn {
	return &Conn{updates: make(chan transport.Update, 16)}
}

// Push queues a lifecycle update.
func (c *Conn) Push(u transport.Update) { c.updates <- u }

// PushConnected queues a successful handshake completion, optionally
// preceded by a credential refresh.
func (c *Conn) PushConnected(creds []byte) {
	if creds != nil {
		c.Push(transport.Update{Creds: creds})
	}
	c.Push(transport.Update{Connected: true})
}

// PushClosed queues a close event and closes the update stream.
func (c *Conn) PushClosed(reason transport.CloseReason) {
	c.Push(transport.Update{Closed: true, Reason: reason})
	c.closeOnce.Do(func() { close(c.updates) })
}

func (c *Conn) Updates() <-chan transport.Update { return c.updates }

func (c *Conn) Send(ctx context.Context, target string, p transport.Payload) (string, error) {
	n := c.sends.Add(1)
	if c.SendFunc != nil {
		return c.SendFunc(ctx, target, p)
	}
	return fmt.Sprintf("msg-%d", n), nil
}

func (c *Conn) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	if c.PairFunc != nil {
		return c.PairFunc(ctx, phone)
	}
	return "ABCD-1234", nil
}

func (c *Conn) Logout(context.Context) error {
	c.loggedOut.Store(true)
	return nil
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

// Sends reports how many Send calls were made.
func (c *Conn) Sends() int { return int(c.sends.Load()) }

// LoggedOut reports whether Logout was called.
func (c *Conn) LoggedOut() bool { return c.loggedOut.Load() }

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Dialer hands out fake connections. OnDial, when set, is called for every
// Dial and may script the returned connection; otherwise each Dial returns
// a connection that completes its handshake immediately.
type Dialer struct {
	OnDial func(identity string, cred []byte) (*Conn, error)

	mu    sync.Mutex
	conns []*Conn
}

func (d *Dialer) Dial(_ context.Context, identity string, cred []byte) (transport.Conn, error) {
	var (
		conn *Conn
		err  error
	)
	if d.OnDial != nil {
		conn, err = d.OnDial(identity, cred)
	} else {
		conn = NewConn()
		conn.PushConnected([]byte("cred-" + identity))
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Conns returns every connection handed out so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// ErrDialRefused is a canned dial failure for tests.
var ErrDialRefused = errors.New("transporttest: dial refused")
