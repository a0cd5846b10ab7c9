// Package ratelimit implements the token-bucket admission control used by
// every control loop to bound per-cycle dispatch work (spec §4.1).
package ratelimit

import (
	"sync"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
)

// Default is the configuration every control loop uses: rate=10/s, burst=30.
const (
	DefaultRate  = 10.0
	DefaultBurst = 30.0
)

// Bucket is an advisory token bucket: Check reports whether a token is
// available and consumes it if so. Callers use it to bound per-cycle work
// ("break out of this cycle once the bucket is empty"), never to block.
//
// Unlike golang.org/x/time/rate.Limiter, Bucket takes its notion of "now"
// from an injected clock.Clock so control-loop tests can drive it
// deterministically without sleeping (spec §9, "Global state"); see
// pkg/executor for a complementary use of x/time/rate on the outbound RPC
// path, where wall-clock pacing against a live network is the actual goal.
type Bucket struct {
	clock clock.Clock
	rate  float64
	burst float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// New constructs a Bucket with the given rate (tokens/second) and burst
// capacity, full at construction time.
func New(c clock.Clock, rate, burst float64) *Bucket {
	return &Bucket{
		clock:  c,
		rate:   rate,
		burst:  burst,
		tokens: burst,
		last:   c.Now(),
	}
}

// NewDefault constructs a Bucket with the default control-loop
// configuration (rate=10/s, burst=30).
func NewDefault(c clock.Clock) *Bucket {
	return New(c, DefaultRate, DefaultBurst)
}

// Check returns true and consumes one token when a token is available.
// Tokens accrue continuously as (now − last) × rate, clamped at burst.
func (b *Bucket) Check() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
