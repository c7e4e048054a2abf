// Package circuitbreaker stops calling a failing dependency for a cool-down
// period and tries it again before letting traffic back through.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down expires.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open trial slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold consecutive failures open the circuit. Default: 5
	FailureThreshold int

	// SuccessThreshold consecutive half-open successes close it. Default: 2
	SuccessThreshold int

	// Cooldown is how long the circuit stays open. Default: 30s
	Cooldown time.Duration

	// MaxHalfOpenRequests limits concurrent trial calls. Default: 1
	MaxHalfOpenRequests int

	// OnStateChange is called outside the breaker's lock.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count; nil counts every error.
	IsFailure func(error) bool
}

// Option configures a CircuitBreaker.
type Option func(*Config)

// WithFailureThreshold sets the failure threshold.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the success threshold.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// WithMaxHalfOpenRequests sets the number of concurrent trial calls.
func WithMaxHalfOpenRequests(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxHalfOpenRequests = n
		}
	}
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithIsFailure sets the failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// Counts holds the breaker's counters for the current state.
type Counts struct {
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	TotalFailures        int
}

// CircuitBreaker guards calls to one dependency.
type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trials   int
}

// New creates a closed CircuitBreaker.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Cooldown:            30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, config: cfg, now: time.Now}
}

// Execute runs fn when the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.Record(err)
	return err
}

// Allow reserves a call. Every successful Allow must be followed by Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	from := cb.state

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.config.MaxHalfOpenRequests {
			to := cb.state
			cb.mu.Unlock()
			cb.notify(from, to)
			return ErrTooManyRequests
		}
		cb.trials++
	}

	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return nil
}

// Record reports the outcome of a call reserved with Allow.
func (cb *CircuitBreaker) Record(err error) {
	failed := err != nil
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	cb.mu.Lock()
	from := cb.state
	if cb.state == StateHalfOpen && cb.trials > 0 {
		cb.trials--
	}

	if failed {
		cb.counts.ConsecutiveSuccesses = 0
		cb.counts.ConsecutiveFailures++
		cb.counts.TotalFailures++
		if cb.state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	} else {
		cb.counts.ConsecutiveFailures = 0
		cb.counts.ConsecutiveSuccesses++
		if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	cb.counts = Counts{TotalFailures: cb.counts.TotalFailures}
	cb.trials = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}

// State returns the current state. An open circuit whose cool-down expired
// still reports open until the next Allow.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the circuit and clears the counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.trials = 0
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsRejection reports whether err came from the breaker rather than the call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
