// Package transport defines the contract between the orchestrator and the
// external messaging protocol library. The orchestrator never inspects
// payload bytes or connection internals; a protocol adapter satisfies
// Dialer/Conn and owns the wire format.
package transport

import (
	"context"
	"errors"
)

// Handshake failure modes reported by connection supervision.
var (
	// ErrReauthRequired means the stored credential was rejected and the
	// network is asking for a fresh QR scan.
	ErrReauthRequired = errors.New("transport: re-authentication required")
	// ErrHandshakeClosed means the connection dropped before the
	// handshake completed.
	ErrHandshakeClosed = errors.New("transport: connection closed during handshake")
)

// CloseReason classifies why a connection closed.
type CloseReason int

const (
	// CloseUnknown covers transient network failures. Eligible for
	// automatic reconnection.
	CloseUnknown CloseReason = iota
	// CloseLoggedOut means the remote end invalidated the credential.
	// Terminal: no automatic reconnection.
	CloseLoggedOut
)

// Terminal reports whether the reason suppresses automatic reconnection.
func (r CloseReason) Terminal() bool { return r == CloseLoggedOut }

// Payload is an opaque outbound message built by a template strategy.
type Payload struct {
	Kind string
	Body []byte
}

// Update is one connection lifecycle event. Exactly one of the QR, Creds,
// Connected, or Closed fields is meaningful per event.
type Update struct {
	// QR carries the raw code string when a scannable artifact is ready.
	QR string
	// Creds carries refreshed credential bytes to persist.
	Creds []byte
	// Connected signals handshake completion.
	Connected bool
	// Closed signals the connection ended, with Reason set.
	Closed bool
	Reason CloseReason
}

// Conn is one live connection to the messaging network. Owned exclusively
// by a single session.
type Conn interface {
	// Updates delivers lifecycle events in order. The channel is closed
	// after a Closed event has been delivered.
	Updates() <-chan Update

	// Send delivers a payload to a normalized target address and returns
	// the remote message ID.
	Send(ctx context.Context, target string, p Payload) (string, error)

	// RequestPairingCode asks the network for a textual pairing code for
	// the given bare phone number.
	RequestPairingCode(ctx context.Context, phone string) (string, error)

	// Logout invalidates the credential on the remote end.
	Logout(ctx context.Context) error

	// Close releases the connection without logging out.
	Close() error
}

// Dialer opens connections. cred is the persisted credential blob for the
// identity, or nil for a first-time handshake.
type Dialer interface {
	Dial(ctx context.Context, identity string, cred []byte) (Conn, error)
}
