// Package ratelimit enforces the per-caller cooldown and daily dispatch
// quota. Policy values come from an injected source and are re-read on
// every check, so runtime settings changes take effect immediately.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/kardosh/multisend/internal/model"
)

// Policy supplies the current limit values.
type Policy interface {
	Cooldown() time.Duration
	MaxPerDay() int
}

// CooldownError reports how long the caller must still wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, %s remaining", e.Remaining)
}

func (e *CooldownError) Is(target error) bool { return target == model.ErrCooldownActive }

// QuotaError reports the exhausted daily allowance.
type QuotaError struct {
	Used int
	Max  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily quota exceeded (%d/%d)", e.Used, e.Max)
}

func (e *QuotaError) Is(target error) bool { return target == model.ErrQuotaExceeded }

// QuotaStatus is a caller-visible snapshot of daily usage.
type QuotaStatus struct {
	Allowed bool `json:"allowed"`
	Used    int  `json:"used"`
	Max     int  `json:"max"`
}

type callerState struct {
	mu      sync.Mutex
	lastUse time.Time
	day     time.Time // midnight of the day being counted, in the limiter zone
	used    int
}

// Limiter tracks cooldown timestamps and daily counters per caller.
// Counters roll over lazily on the first check after midnight in the
// configured zone; there is no background timer.
type Limiter struct {
	policy Policy
	zone   *time.Location
	now    func() time.Time

	mu      sync.Mutex
	callers map[string]*callerState
}

func NewLimiter(policy Policy, zone *time.Location) *Limiter {
	if zone == nil {
		zone = time.UTC
	}
	return &Limiter{
		policy:  policy,
		zone:    zone,
		now:     time.Now,
		callers: make(map[string]*callerState),
	}
}

func (l *Limiter) caller(id string) *callerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.callers[id]
	if !ok {
		c = &callerState{}
		l.callers[id] = c
	}
	return c
}

func (l *Limiter) midnight(t time.Time) time.Time {
	t = t.In(l.zone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.zone)
}

// rollover must be called with c.mu held.
func (l *Limiter) rollover(c *callerState) {
	today := l.midnight(l.now())
	if !c.day.Equal(today) {
		c.day = today
		c.used = 0
	}
}

// CheckCooldown returns the remaining cooldown for the caller, or zero
// when a dispatch may proceed.
func (l *Limiter) CheckCooldown(callerID string) time.Duration {
	c := l.caller(callerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastUse.IsZero() {
		return 0
	}
	remaining := l.policy.Cooldown() - l.now().Sub(c.lastUse)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckDailyQuota reports whether the caller may start another job today.
func (l *Limiter) CheckDailyQuota(callerID string) QuotaStatus {
	c := l.caller(callerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	l.rollover(c)
	max := l.policy.MaxPerDay()
	return QuotaStatus{Allowed: c.used < max, Used: c.used, Max: max}
}

// Check runs both checks without recording a use. Callers that still have
// work to do before the job starts run Check first and Admit once the job
// is actually able to start.
func (l *Limiter) Check(callerID string) error {
	c := l.caller(callerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastUse.IsZero() {
		if remaining := l.policy.Cooldown() - l.now().Sub(c.lastUse); remaining > 0 {
			return &CooldownError{Remaining: remaining}
		}
	}

	l.rollover(c)
	if max := l.policy.MaxPerDay(); c.used >= max {
		return &QuotaError{Used: c.used, Max: max}
	}
	return nil
}

// Admit runs both checks and, when they pass, records the use atomically
// with respect to concurrent calls from the same caller.
func (l *Limiter) Admit(callerID string) error {
	c := l.caller(callerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastUse.IsZero() {
		if remaining := l.policy.Cooldown() - l.now().Sub(c.lastUse); remaining > 0 {
			return &CooldownError{Remaining: remaining}
		}
	}

	l.rollover(c)
	if max := l.policy.MaxPerDay(); c.used >= max {
		return &QuotaError{Used: c.used, Max: max}
	}

	c.lastUse = l.now()
	c.used++
	return nil
}

// RecordUse stamps the cooldown clock and increments the daily counter
// without checking limits.
func (l *Limiter) RecordUse(callerID string) {
	c := l.caller(callerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	l.rollover(c)
	c.lastUse = l.now()
	c.used++
}
