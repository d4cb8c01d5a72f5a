// Package backoff computes how long the reconciler waits before retrying
// after a failed sweep. Strategies hold only configuration, so a single
// value can be shared across goroutines.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy maps a run of consecutive sweep failures to a wait time.
type Strategy interface {
	// Delay returns the wait after failure number n (1-indexed). Failure 1
	// is the first failed sweep after a success.
	Delay(failures int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval no matter how long the failure run is.
type Constant struct {
	Interval time.Duration
}

// NewConstant returns a strategy that always waits interval.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns Interval regardless of the failure count.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the wait with every consecutive failure:
// Initial, 2*Initial, 4*Initial, ... up to Max (0 means uncapped).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential returns a doubling strategy starting at initial and
// capped at maxDelay; pass 0 to leave it uncapped.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial doubled failures-1 times, capped at Max.
func (e *Exponential) Delay(failures int) time.Duration {
	return expDelay(e.Initial, e.Max, failures)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter
// ──────────────────────────────────────────────────

// ExponentialWithJitter picks a uniform random wait between zero and the
// capped exponential value, so replicas sharing a store do not sweep in
// lockstep after an outage.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter returns a full-jitter strategy over the
// initial..maxDelay doubling curve.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, Initial*2^(failures-1)], capped
// at Max.
func (e *ExponentialWithJitter) Delay(failures int) time.Duration {
	ceil := expDelay(e.Initial, e.Max, failures)
	return time.Duration(rand.Float64() * float64(ceil)) //nolint:gosec // non-crypto rand is fine for jitter
}

// expDelay is the shared curve: initial * 2^(failures-1), capped at
// maxDelay when maxDelay > 0. The cap is applied in float space before
// converting back, so long failure runs cannot overflow the duration.
func expDelay(initial, maxDelay time.Duration, failures int) time.Duration {
	d := float64(initial) * math.Pow(2, float64(failures-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// DefaultStrategy is what the reconciler falls back to when no strategy
// is configured: full jitter over a 1s..1m exponential curve.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}
