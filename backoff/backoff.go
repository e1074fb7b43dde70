// Package backoff computes retry delays for failed queue deliveries.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialWithJitter applies full jitter to an exponential base:
// a random delay in [0, min(Base * 2^(attempt-1), Max)]. Jitter spreads
// out retries when many jobs fail at once.
type ExponentialWithJitter struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(base, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Base: base, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Base * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceil := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && ceil > float64(e.Max) {
		ceil = float64(e.Max)
	}
	return time.Duration(rand.Float64() * ceil) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// Default returns the strategy used when none is configured: exponential
// from the given base delay, capped at 5 minutes.
func Default(base time.Duration) Strategy {
	if base <= 0 {
		base = time.Second
	}
	return NewExponential(base, 5*time.Minute)
}
