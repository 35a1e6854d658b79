// Package health tracks Klarna session API failures so the gateway can
// stop offering itself after repeated errors. A tripped breaker maps to
// the payment method reporting itself unavailable until the cool-off
// window elapses.
package health

import (
	"sync"
	"time"
)

// State of one tracked operation's circuit.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

const (
	defaultFailureThreshold       = 3
	defaultOpenTimeout            = 60 * time.Second
	defaultHalfOpenSuccessToClose = 1
)

type opState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
}

// Breaker is an in-memory circuit breaker keyed by operation name
// (e.g. "create_session", "update_session").
type Breaker struct {
	mu                     sync.Mutex
	ops                    map[string]*opState
	failureThreshold       int
	openTimeout            time.Duration
	halfOpenSuccessToClose int
}

// NewBreaker creates a Breaker with default settings: three consecutive
// failures open the circuit for one minute; a single success while
// half-open closes it again.
func NewBreaker() *Breaker {
	return NewBreakerWithSettings(defaultFailureThreshold, defaultOpenTimeout, defaultHalfOpenSuccessToClose)
}

// NewBreakerWithSettings creates a Breaker with custom thresholds.
func NewBreakerWithSettings(failureThreshold int, openTimeout time.Duration, halfOpenSuccessToClose int) *Breaker {
	return &Breaker{
		ops:                    make(map[string]*opState),
		failureThreshold:       failureThreshold,
		openTimeout:            openTimeout,
		halfOpenSuccessToClose: halfOpenSuccessToClose,
	}
}

func (b *Breaker) get(op string) *opState {
	s, ok := b.ops[op]
	if !ok {
		s = &opState{state: Closed}
		b.ops[op] = s
	}
	return s
}

// Healthy reports whether the operation may be attempted. An Open
// circuit whose timeout has elapsed transitions to HalfOpen and allows
// the probe through.
func (b *Breaker) Healthy(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(op)
	switch s.state {
	case Open:
		if time.Now().After(s.openUntil) {
			s.state = HalfOpen
			s.consecutiveSuccesses = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordFailure notes a failed call. Enough consecutive failures in the
// Closed state, or any failure while HalfOpen, opens the circuit.
func (b *Breaker) RecordFailure(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(op)
	switch s.state {
	case Closed:
		s.consecutiveFailures++
		if s.consecutiveFailures >= b.failureThreshold {
			s.state = Open
			s.openUntil = time.Now().Add(b.openTimeout)
		}
	case HalfOpen:
		s.state = Open
		s.openUntil = time.Now().Add(b.openTimeout)
		s.consecutiveFailures = 0
		s.consecutiveSuccesses = 0
	}
}

// RecordSuccess notes a successful call. In Closed it resets the
// failure count; in HalfOpen enough successes close the circuit.
func (b *Breaker) RecordSuccess(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(op)
	switch s.state {
	case Closed:
		s.consecutiveFailures = 0
	case HalfOpen:
		s.consecutiveSuccesses++
		if s.consecutiveSuccesses >= b.halfOpenSuccessToClose {
			s.state = Closed
			s.consecutiveFailures = 0
			s.consecutiveSuccesses = 0
		}
	}
}

// CurrentState returns the operation's circuit state without triggering
// any transition.
func (b *Breaker) CurrentState(op string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.ops[op]
	if !ok {
		return Closed
	}
	return s.state
}
