// Package sweeper periodically removes sessions that reached a terminal
// state from the registry so their identities can be registered again.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pruner is the slice of the session registry the sweeper needs.
type Pruner interface {
	// Terminal returns the identities of sessions that will never
	// become active again.
	Terminal() []string
	// Remove evicts an identity from the registry.
	Remove(identity string)
}

type Sweeper struct {
	interval time.Duration
	reg      Pruner

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, reg Pruner) (*Sweeper, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if reg == nil {
		return nil, errors.New("registry must not be nil")
	}
	return &Sweeper{
		interval: interval,
		reg:      reg,
		done:     make(chan struct{}),
	}, nil
}

func (s *Sweeper) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("sweeper started", "interval", s.interval.String())

		s.sweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("sweeper stopping")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	return true
}

func (s *Sweeper) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("sweeper stopped")
	return true
}

func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

func (s *Sweeper) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep panic recovered", "panic", r)
		}
	}()

	pruned := 0
	for _, identity := range s.reg.Terminal() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.reg.Remove(identity)
		pruned++
	}
	if pruned > 0 {
		slog.Info("pruned terminal sessions", "count", pruned)
	}
}
