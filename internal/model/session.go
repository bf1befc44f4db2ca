package model

import "time"

// SessionState is the lifecycle state of one managed connection.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateConnecting   SessionState = "connecting"
	StateAwaitingAuth SessionState = "awaiting_auth"
	StateConnected    SessionState = "connected"
	StateReconnecting SessionState = "reconnecting"
	StateClosed       SessionState = "closed"
	StateFailed       SessionState = "failed"
)

// Terminal reports whether the state admits no further transitions.
// A new connect() creates a fresh session instead of reviving one of these.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// SessionStatus is the caller-visible snapshot of a session.
type SessionStatus struct {
	Identity     string       `json:"identity"`
	Connected    bool         `json:"connected"`
	State        SessionState `json:"state"`
	ConnectedAt  *time.Time   `json:"connectedAt,omitempty"`
	LastActivity *time.Time   `json:"lastActivity,omitempty"`
}
