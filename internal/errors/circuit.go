package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker fails fast once a dependency keeps erroring: after `threshold`
// consecutive failures it refuses calls for `cooldown`, then lets probes
// through until one succeeds. The embed package wraps the remote
// embedder with one so a down provider does not hold every queued task
// on a full timeout.
//
// There is no explicit state machine; "open" is simply a recent-enough
// trip timestamp.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	failures  int
	trippedAt time.Time // zero while closed
}

// NewBreaker creates a breaker. Non-positive threshold or cooldown take
// the defaults (5 failures, 30s).
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// Tripped reports whether the breaker is currently refusing calls.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refusing()
}

// refusing must be called with the lock held.
func (b *Breaker) refusing() bool {
	return !b.trippedAt.IsZero() && time.Since(b.trippedAt) < b.cooldown
}

// Do runs fn through the breaker. While tripped it returns
// ErrCircuitOpen without calling fn. Once the cooldown has passed, calls
// act as probes: a failure re-arms the cooldown immediately, a success
// closes the breaker.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	b.mu.Lock()
	if b.refusing() {
		b.mu.Unlock()
		return zero, ErrCircuitOpen
	}
	probing := !b.trippedAt.IsZero()
	b.mu.Unlock()

	result, err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if probing || b.failures >= b.threshold {
			b.trippedAt = time.Now()
		}
		return zero, err
	}
	b.failures = 0
	b.trippedAt = time.Time{}
	return result, nil
}
