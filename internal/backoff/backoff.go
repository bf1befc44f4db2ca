// Package backoff provides retry delay strategies. Strategies are
// stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the wait before retry attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant returns the same delay for every attempt.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Delay(_ int) time.Duration { return c.Interval }

// Exponential doubles the delay each attempt:
// Delay = min(Initial * 2^(attempt-1), Max). Max <= 0 means uncapped.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialJitter picks a random delay in [base/2, base] where base is
// the exponential delay. Spreads reconnect storms across many sessions.
type ExponentialJitter struct {
	Initial time.Duration
	Max     time.Duration
}

func (e ExponentialJitter) Delay(attempt int) time.Duration {
	base := Exponential{Initial: e.Initial, Max: e.Max}.Delay(attempt)
	half := base / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// Dispatch is the send-retry schedule: 2s, 4s, 8s... capped at 30s.
func Dispatch() Strategy {
	return Exponential{Initial: 2 * time.Second, Max: 30 * time.Second}
}

// Reconnect is the session reconnect schedule: jittered 1s doubling,
// capped at 30s.
func Reconnect() Strategy {
	return ExponentialJitter{Initial: time.Second, Max: 30 * time.Second}
}
