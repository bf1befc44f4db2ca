package sweeper

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRegistry hands out a fixed set of terminal identities and records
// removals.
type fakeRegistry struct {
	mu       sync.Mutex
	terminal []string
	removed  []string
	sweeps   atomic.Int64
}

func (f *fakeRegistry) Terminal() []string {
	f.sweeps.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminal...)
}

func (f *fakeRegistry) Remove(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, identity)
	for i, id := range f.terminal {
		if id == identity {
			f.terminal = append(f.terminal[:i], f.terminal[i+1:]...)
			break
		}
	}
}

func (f *fakeRegistry) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("interval must be > 0", func(t *testing.T) {
		t.Parallel()

		s, err := New(0, &fakeRegistry{})
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil sweeper, got %#v", s)
		}
	})

	t.Run("registry must not be nil", func(t *testing.T) {
		t.Parallel()

		s, err := New(100*time.Millisecond, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil sweeper, got %#v", s)
		}
	})
}

func TestSweeper_StartStop_Basics(t *testing.T) {
	reg := &fakeRegistry{}

	s, err := New(10*time.Millisecond, reg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected sweeper not running initially")
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}
	if !s.IsRunning() {
		t.Fatalf("expected sweeper running after Start()")
	}
	if ok := s.Start(); ok {
		t.Fatalf("expected Start() false when already running")
	}

	// There is an immediate sweep on Start().
	waitForAtLeast(t, &reg.sweeps, 1, 500*time.Millisecond)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true on first call")
	}
	if s.IsRunning() {
		t.Fatalf("expected sweeper not running after Stop()")
	}
	if ok := s.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestSweeper_PrunesTerminalSessions(t *testing.T) {
	reg := &fakeRegistry{terminal: []string{"a", "b"}}

	s, err := New(10*time.Millisecond, reg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for reg.removedCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for prune; removed=%d", reg.removedCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeper_DoesNotSweepAfterStop(t *testing.T) {
	reg := &fakeRegistry{}

	s, err := New(10*time.Millisecond, reg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	waitForAtLeast(t, &reg.sweeps, 2, 750*time.Millisecond)
	beforeStop := reg.sweeps.Load()

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	time.Sleep(100 * time.Millisecond)
	if after := reg.sweeps.Load(); after != beforeStop {
		t.Fatalf("expected no sweeps after Stop; before=%d after=%d", beforeStop, after)
	}
}

func TestSweeper_StartStopMultipleTimes(t *testing.T) {
	reg := &fakeRegistry{}

	s, err := New(10*time.Millisecond, reg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if ok := s.Start(); !ok {
			t.Fatalf("iteration %d: expected Start() true", i)
		}

		waitForAtLeast(t, &reg.sweeps, 1, 750*time.Millisecond)

		if ok := s.Stop(); !ok {
			t.Fatalf("iteration %d: expected Stop() true", i)
		}

		reg.sweeps.Store(0)
	}
}

// waitForAtLeast waits until calls >= n or fails the test after timeout.
// Uses polling to avoid test flakes across CI.
func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if calls.Load() >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for calls >= %d (got %d)", n, calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
