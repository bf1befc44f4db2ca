package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Loopback is an in-process Dialer for local runs and smoke tests. It
// completes handshakes against itself instead of a real network: a dial
// with a stored credential connects immediately, a fresh dial emits a QR
// artifact and then pairs after AutoPair elapses, as if the code had been
// scanned. Sends succeed and are counted, nothing leaves the process.
type Loopback struct {
	// AutoPair is how long a fresh handshake stays in the QR phase.
	AutoPair time.Duration

	dials atomic.Int64
}

func NewLoopback() *Loopback {
	return &Loopback{AutoPair: 2 * time.Second}
}

func (l *Loopback) Dial(ctx context.Context, identity string, cred []byte) (Conn, error) {
	n := l.dials.Add(1)
	c := &loopbackConn{
		identity: identity,
		updates:  make(chan Update, 8),
		done:     make(chan struct{}),
	}

	if cred != nil {
		c.deliver(Update{Connected: true})
		return c, nil
	}

	c.deliver(Update{QR: fmt.Sprintf("loopback-qr-%s-%d", identity, n)})
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(l.AutoPair):
		}
		cred := []byte("loopback-cred:" + identity)
		c.deliver(Update{Creds: cred})
		c.deliver(Update{Connected: true})
	}()
	return c, nil
}

type loopbackConn struct {
	identity string
	done     chan struct{}

	// mu guards updates and closed; every send on updates happens under
	// it so closeOnce can close the channel safely.
	mu      sync.Mutex
	updates chan Update
	closed  bool

	seq atomic.Int64
}

// deliver queues an update unless the connection is closed. The buffer
// holds every event a loopback connection can ever emit, so a send never
// blocks even with no reader.
func (c *loopbackConn) deliver(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.updates <- u:
	default:
	}
}

func (c *loopbackConn) Updates() <-chan Update { return c.updates }

func (c *loopbackConn) Send(_ context.Context, target string, _ Payload) (string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", fmt.Errorf("loopback connection closed")
	}
	return fmt.Sprintf("loopback-%s-%d", target, c.seq.Add(1)), nil
}

func (c *loopbackConn) RequestPairingCode(_ context.Context, phone string) (string, error) {
	if len(phone) < 4 {
		return "", fmt.Errorf("phone %q too short for pairing", phone)
	}
	return "LOOP-" + phone[len(phone)-4:], nil
}

func (c *loopbackConn) Logout(context.Context) error {
	c.closeOnce(CloseLoggedOut)
	return nil
}

func (c *loopbackConn) Close() error {
	c.closeOnce(CloseUnknown)
	return nil
}

// closeOnce delivers the final Closed event and closes the updates
// channel, so a consumer blocked on Updates always wakes up.
func (c *loopbackConn) closeOnce(reason CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	select {
	case c.updates <- Update{Closed: true, Reason: reason}:
	default:
	}
	close(c.updates)
	close(c.done)
}
