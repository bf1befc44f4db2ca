// Package publish translates session state transitions into events for the
// realtime transport. Delivery is best-effort: a slow or dead transport
// never blocks a state transition.
package publish

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kardosh/multisend/internal/model"
)

// Event is one session state transition.
type Event struct {
	Identity string             `json:"identity"`
	State    model.SessionState `json:"state"`
	Detail   string             `json:"detail,omitempty"`
	At       time.Time          `json:"at"`
}

// Publisher receives every transition of every session, in per-identity
// order.
type Publisher interface {
	Publish(identity string, ev Event)
}

// Sink is the external realtime transport collaborator.
type Sink interface {
	Emit(channel string, payload any)
}

// Nop discards events. Used when no realtime transport is configured.
type Nop struct{}

func (Nop) Publish(string, Event) {}

const channelSessions = "sessions"

// Fanout delivers events to a Sink asynchronously while preserving
// per-identity order: each identity gets its own queue drained by a single
// goroutine. Events are dropped, with a log line, when a queue is full.
type Fanout struct {
	sink Sink

	mu     sync.Mutex
	queues map[string]chan Event
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(sink Sink) *Fanout {
	return &Fanout{sink: sink, queues: make(map[string]chan Event)}
}

func (f *Fanout) Publish(identity string, ev Event) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	q, ok := f.queues[identity]
	if !ok {
		q = make(chan Event, 64)
		f.queues[identity] = q
		f.wg.Add(1)
		go f.drain(q)
	}
	f.mu.Unlock()

	select {
	case q <- ev:
	default:
		slog.Warn("status event dropped, queue full", "identity", identity, "state", ev.State)
	}
}

func (f *Fanout) drain(q chan Event) {
	defer f.wg.Done()
	for ev := range q {
		f.sink.Emit(channelSessions, ev)
	}
}

// Close flushes queued events and stops the drain goroutines.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, q := range f.queues {
		close(q)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
