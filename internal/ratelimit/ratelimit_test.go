package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kardosh/multisend/internal/model"
)

func testLimiter(t *testing.T, cooldown time.Duration, maxPerDay int) (*Limiter, *time.Time) {
	t.Helper()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(NewSettings(cooldown, maxPerDay), time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAdmit_CooldownBlocksSecondCall(t *testing.T) {
	t.Parallel()

	l, now := testLimiter(t, 5*time.Minute, 50)

	if err := l.Admit("user-1"); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	err := l.Admit("user-1")
	if !errors.Is(err, model.ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}
	var ce *CooldownError
	if !errors.As(err, &ce) || ce.Remaining <= 0 {
		t.Fatalf("expected positive remaining, got %+v", ce)
	}

	// Other callers are unaffected.
	if err := l.Admit("user-2"); err != nil {
		t.Fatalf("other caller Admit: %v", err)
	}

	*now = now.Add(5*time.Minute + time.Second)
	if err := l.Admit("user-1"); err != nil {
		t.Fatalf("Admit after cooldown: %v", err)
	}
}

func TestCheckCooldown_Remaining(t *testing.T) {
	t.Parallel()

	l, now := testLimiter(t, 5*time.Minute, 50)

	if rem := l.CheckCooldown("u"); rem != 0 {
		t.Fatalf("fresh caller remaining = %v, want 0", rem)
	}
	l.RecordUse("u")
	*now = now.Add(2 * time.Minute)
	if rem := l.CheckCooldown("u"); rem != 3*time.Minute {
		t.Fatalf("remaining = %v, want 3m", rem)
	}
	*now = now.Add(10 * time.Minute)
	if rem := l.CheckCooldown("u"); rem != 0 {
		t.Fatalf("remaining after expiry = %v, want 0", rem)
	}
}

func TestAdmit_DailyQuotaAndRollover(t *testing.T) {
	t.Parallel()

	l, now := testLimiter(t, 0, 3)

	for i := 0; i < 3; i++ {
		if err := l.Admit("u"); err != nil {
			t.Fatalf("Admit %d: %v", i+1, err)
		}
	}

	err := l.Admit("u")
	if !errors.Is(err, model.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	var qe *QuotaError
	if !errors.As(err, &qe) || qe.Used != 3 || qe.Max != 3 {
		t.Fatalf("quota error = %+v", qe)
	}

	st := l.CheckDailyQuota("u")
	if st.Allowed || st.Used != 3 || st.Max != 3 {
		t.Fatalf("quota status = %+v", st)
	}

	// Past midnight the counter resets lazily.
	*now = time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	st = l.CheckDailyQuota("u")
	if !st.Allowed || st.Used != 0 {
		t.Fatalf("quota after rollover = %+v", st)
	}
	if err := l.Admit("u"); err != nil {
		t.Fatalf("Admit after rollover: %v", err)
	}
}

func TestRollover_UsesConfiguredZone(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+7", 7*3600)
	l := NewLimiter(NewSettings(0, 1), zone)
	// 23:30 local on Mar 10 (16:30 UTC).
	now := time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if err := l.Admit("u"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := l.Admit("u"); !errors.Is(err, model.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	// 00:10 local next day is still Mar 10 UTC; the zone decides.
	now = time.Date(2026, 3, 10, 17, 10, 0, 0, time.UTC)
	if err := l.Admit("u"); err != nil {
		t.Fatalf("Admit after local midnight: %v", err)
	}
}

func TestSettings_HotReload(t *testing.T) {
	t.Parallel()

	s := NewSettings(5*time.Minute, 50)
	l := NewLimiter(s, time.UTC)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.RecordUse("u")
	now = now.Add(time.Minute)
	if rem := l.CheckCooldown("u"); rem != 4*time.Minute {
		t.Fatalf("remaining = %v, want 4m", rem)
	}

	// The limiter re-reads policy every check.
	s.SetCooldown(30 * time.Second)
	if rem := l.CheckCooldown("u"); rem != 0 {
		t.Fatalf("remaining after reload = %v, want 0", rem)
	}
}

func TestAdmit_ConcurrentSameCaller(t *testing.T) {
	t.Parallel()

	l, _ := testLimiter(t, 0, 10)

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Admit("u"); err == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	n := 0
	for range admitted {
		n++
	}
	if n != 10 {
		t.Fatalf("admitted %d jobs, want exactly 10", n)
	}
}
