package ratelimit

import (
	"sync/atomic"
	"time"
)

// Settings is a hot-reloadable Policy. The web layer updates it at runtime;
// the limiter observes new values on its next check.
type Settings struct {
	cooldownMs atomic.Int64
	maxPerDay  atomic.Int64
}

// NewSettings seeds the policy with initial values.
func NewSettings(cooldown time.Duration, maxPerDay int) *Settings {
	s := &Settings{}
	s.SetCooldown(cooldown)
	s.SetMaxPerDay(maxPerDay)
	return s
}

func (s *Settings) Cooldown() time.Duration {
	return time.Duration(s.cooldownMs.Load()) * time.Millisecond
}

func (s *Settings) MaxPerDay() int {
	return int(s.maxPerDay.Load())
}

func (s *Settings) SetCooldown(d time.Duration) {
	s.cooldownMs.Store(d.Milliseconds())
}

func (s *Settings) SetMaxPerDay(n int) {
	s.maxPerDay.Store(int64(n))
}
