// Package circuitbreaker provides a per-key circuit breaker with
// closed → open → half-open state transitions.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: calls flow through
	StateOpen                  // Tripped: calls are skipped
	StateHalfOpen              // Probing: one call allowed to test recovery
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultThreshold    = 5
	DefaultOpenDuration = 30 * time.Second
)

// Transition describes one state change.
type Transition struct {
	Key      string
	From     State
	To       State
	Failures int
}

// entry tracks per-key circuit state.
type entry struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker is a per-key circuit breaker. It counts consecutive failures per
// key and trips open at the threshold. After the open duration the key
// moves to half-open and allows one trial call.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*entry
	threshold    int
	openDuration time.Duration
	now          func() time.Time
	onTransition func(Transition)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the consecutive failures that open a key.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithOpenDuration sets how long a key stays open before probing.
func WithOpenDuration(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.openDuration = d
		}
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// OnTransition sets a hook called synchronously on every state change, with
// the breaker lock released. Keep it cheap: logging and metrics.
func OnTransition(fn func(Transition)) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New creates a circuit breaker.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		entries:      make(map[string]*entry),
		threshold:    DefaultThreshold,
		openDuration: DefaultOpenDuration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call for key should go ahead. An open key whose
// open duration has elapsed moves to half-open and allows one trial call.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return true // No entry = closed
	}

	var (
		allowed bool
		tr      *Transition
	)
	switch e.state {
	case StateOpen:
		if b.now().Sub(e.openedAt) >= b.openDuration {
			tr = b.transition(e, key, StateHalfOpen)
			allowed = true
		}
	case StateHalfOpen:
		// Trial call in flight.
	default:
		allowed = true
	}
	b.mu.Unlock()

	b.fire(tr)
	return allowed
}

// RecordSuccess resets the failure count and closes a half-open key.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	var tr *Transition
	if e.state == StateHalfOpen {
		tr = b.transition(e, key, StateClosed)
	}
	e.failures = 0
	b.mu.Unlock()

	b.fire(tr)
}

// RecordFailure counts a failure. A failed trial call reopens the key; a closed
// key opens once the threshold is reached.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	e.failures++

	var tr *Transition
	if e.state == StateHalfOpen || (e.state == StateClosed && e.failures >= b.threshold) {
		e.openedAt = b.now()
		tr = b.transition(e, key, StateOpen)
	}
	b.mu.Unlock()

	b.fire(tr)
}

// State returns the current state for a key. Unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return StateClosed
	}
	return e.state
}

// transition must be called with b.mu held.
func (b *Breaker) transition(e *entry, key string, to State) *Transition {
	from := e.state
	if from == to {
		return nil
	}
	e.state = to
	return &Transition{Key: key, From: from, To: to, Failures: e.failures}
}

func (b *Breaker) fire(tr *Transition) {
	if tr != nil && b.onTransition != nil {
		b.onTransition(*tr)
	}
}
