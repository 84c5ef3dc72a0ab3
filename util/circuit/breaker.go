// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package circuit implements the three-state breaker guarding upstream HTTP
// dependencies: closed, open, half-open with a single probe.
package circuit

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// State of the breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is the fast-fail returned while the breaker rejects calls.
var ErrOpen = errors.New("CIRCUIT_OPEN: upstream circuit breaker is open")

// Breaker is shared by every caller of one client instance; state updates
// are mutex-guarded so a transition is observed by all subsequent callers.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	probeInFlight bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New builds a breaker that opens after threshold consecutive failures and
// admits a single probe after the cooldown window.
func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow decides whether a call may proceed. While open it fails fast with
// ErrOpen and makes no attempt; after the cooldown exactly one caller gets
// the half-open probe, everyone else keeps failing fast until the probe
// reports.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeInFlight = true
		return nil
	case HalfOpen:
		if b.probeInFlight {
			return ErrOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// Success reports a completed call; in half-open it closes the breaker and
// resets the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeInFlight = false
}

// Failure reports an upstream failure (5xx or network error). The counter
// only moves on these; client-side 4xx outcomes never trip the breaker.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()
	b.probeInFlight = false
	if b.state == HalfOpen {
		b.state = Open
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
