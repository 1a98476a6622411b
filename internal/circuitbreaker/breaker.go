package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Normal operation; requests pass through.
	Open                  // Failing; requests are rejected immediately.
	HalfOpen              // Testing recovery, one request allowed through.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	maxFailures     int
	resetTimeout    time.Duration
	lastFailureTime time.Time
	now             func() time.Time
}

// New creates a Breaker that opens after maxFailures consecutive errors
// and attempts recovery after resetTimeout.
func New(maxFailures int, resetTimeout time.Duration) *Breaker {
	return newBreaker(maxFailures, resetTimeout, time.Now)
}

func newBreaker(maxFailures int, resetTimeout time.Duration, now func() time.Time) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          now,
	}
}

// Execute runs fn through the circuit breaker. If the circuit is open,
// ErrCircuitOpen is returned without calling fn. While half-open only
// one trial call runs; concurrent callers are rejected until it finishes.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
	case HalfOpen:
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailureTime = b.now()
		if b.failures >= b.maxFailures || b.state == HalfOpen {
			b.state = Open
		}
		return err
	}

	b.failures = 0
	b.state = Closed
	return nil
}

// GetState returns the current state of the breaker.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Set holds one breaker per key, created on first use. Plugin delivery
// keys it by endpoint so one dead plugin does not trip the others.
type Set struct {
	mu           sync.Mutex
	breakers     map[string]*Breaker
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
}

// NewSet creates an empty Set whose breakers share the given settings.
func NewSet(maxFailures int, resetTimeout time.Duration) *Set {
	return &Set{
		breakers:     make(map[string]*Breaker),
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Get returns the breaker for key, creating it if needed.
func (s *Set) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = newBreaker(s.maxFailures, s.resetTimeout, s.now)
		s.breakers[key] = b
	}
	return b
}

// Execute runs fn through the breaker for key.
func (s *Set) Execute(key string, fn func() error) error {
	return s.Get(key).Execute(fn)
}

// Forget drops the breaker for key.
func (s *Set) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, key)
}

// States reports the state of every known breaker.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	keys := make([]string, 0, len(s.breakers))
	for k := range s.breakers {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Strings(keys)
	out := make(map[string]State, len(keys))
	for _, k := range keys {
		out[k] = s.Get(k).GetState()
	}
	return out
}
