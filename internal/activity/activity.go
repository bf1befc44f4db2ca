// Package activity records who did what for the audit trail. Recording is
// fire-and-forget: a slow or missing database never blocks orchestration.
package activity

import (
	"context"
	"time"
)

// Event is one auditable action.
type Event struct {
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Logger is the audit collaborator.
type Logger interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards events. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
