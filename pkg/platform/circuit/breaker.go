// Package circuit provides a failure-counting breaker for collaborators with
// a primary/fallback split. Consecutive failures open the breaker; the caller
// routes work to the fallback while it is open and keeps recording outcomes
// so a recovered primary closes it again.
package circuit

import (
	"sync"
	"sync/atomic"
	"time"
)

// State reports which side of the primary/fallback split the breaker
// currently selects.
type State int

const (
	// StateClosed routes to the primary.
	StateClosed State = iota
	// StateOpen routes to the fallback.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Change reports a state transition caused by a recorded outcome. At most one
// of Opened and Closed is set; callers use it to log transitions exactly once
// instead of on every affected call.
type Change struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive outcomes for a named collaborator. A run of
// failures opens it, a run of successes closes it, and a mixed outcome resets
// the opposing count.
type Breaker struct {
	name string

	mu               sync.Mutex
	state            State
	failureThreshold int
	successThreshold int
	failures         int
	successes        int

	lastAttempt atomic.Int64 // unix nanos of the last recorded outcome or won probe
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open
// breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the collaborator name given at construction.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the breaker currently routes to the fallback.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// RecordFailure records a failed primary outcome. It returns whether callers
// should now use the fallback, plus the transition if this failure caused one.
func (b *Breaker) RecordFailure() (useFallback bool, change Change) {
	b.lastAttempt.Store(time.Now().UnixNano())

	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	if b.state == StateOpen {
		return true, Change{}
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.failures = 0
		return true, Change{Opened: true}
	}
	return false, Change{}
}

// RecordSuccess records a successful primary outcome. It returns whether
// callers should now use the primary, plus the transition if this success
// caused one.
func (b *Breaker) RecordSuccess() (usePrimary bool, change Change) {
	b.lastAttempt.Store(time.Now().UnixNano())

	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateClosed {
		return true, Change{}
	}

	b.successes++
	if b.successes >= b.successThreshold {
		b.state = StateClosed
		b.successes = 0
		return true, Change{Closed: true}
	}
	return false, Change{}
}

// Probe reports whether the caller may attempt the primary. Closed breakers
// always allow it. Open breakers admit at most one caller per interval so the
// primary keeps being probed without taking the full traffic; the winning
// caller must record the outcome.
func (b *Breaker) Probe(interval time.Duration) bool {
	if !b.IsOpen() {
		return true
	}
	last := b.lastAttempt.Load()
	now := time.Now().UnixNano()
	if now-last < interval.Nanoseconds() {
		return false
	}
	return b.lastAttempt.CompareAndSwap(last, now)
}

// Reset closes the breaker and clears all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
