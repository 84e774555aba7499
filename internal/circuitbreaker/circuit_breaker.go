// Package circuitbreaker short-circuits operation kinds that keep failing,
// so a struggling store is not hammered by every retrieval call.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive trips before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes before closing.
	SuccessThreshold int
	// OpenTimeout is the cool-down before an open circuit admits a probe.
	OpenTimeout time.Duration
	// MaxHalfOpenRequests caps concurrent probes in half-open state.
	MaxHalfOpenRequests int
	// ShouldTrip decides whether an error counts against the circuit.
	// Domain rejections (not-found, invalid argument) should not open it.
	ShouldTrip func(error) bool
	// OnStateChange is called on transitions.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a conservative configuration.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker guards one operation kind.
type CircuitBreaker struct {
	config *Config

	state           int32 // atomic State
	lastFailureTime int64 // atomic unix nanos

	consecutiveFailures  int32
	consecutiveSuccesses int32
	halfOpenRequests     int32

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
}

// New creates a circuit breaker in the closed state.
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxHalfOpenRequests < 1 {
		config.MaxHalfOpenRequests = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  int32(StateClosed),
	}
}

// Errors returned without touching the guarded operation.
var (
	ErrCircuitOpen               = errors.New("circuit breaker is open")
	ErrTooManyConcurrentRequests = errors.New("too many concurrent requests in half-open state")
)

// Execute runs fn under the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.canExecute(); err != nil {
		atomic.AddInt64(&cb.totalRejections, 1)
		return err
	}

	atomic.AddInt64(&cb.totalRequests, 1)
	err := fn(ctx)
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) canExecute() error {
	switch cb.getState() {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.cooldownElapsed() {
			cb.transitionTo(StateHalfOpen)
			return cb.admitHalfOpen()
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		return cb.admitHalfOpen()
	default:
		return fmt.Errorf("unknown circuit breaker state")
	}
}

func (cb *CircuitBreaker) admitHalfOpen() error {
	current := atomic.AddInt32(&cb.halfOpenRequests, 1)
	if current > int32(cb.config.MaxHalfOpenRequests) {
		atomic.AddInt32(&cb.halfOpenRequests, -1)
		return ErrTooManyConcurrentRequests
	}
	return nil
}

func (cb *CircuitBreaker) recordResult(err error) {
	state := cb.getState()

	trips := err != nil
	if trips && cb.config.ShouldTrip != nil {
		trips = cb.config.ShouldTrip(err)
	}

	if trips {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}

	if state == StateHalfOpen {
		atomic.AddInt32(&cb.halfOpenRequests, -1)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	atomic.AddInt64(&cb.totalSuccesses, 1)

	switch cb.getState() {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
	case StateHalfOpen:
		if atomic.AddInt32(&cb.consecutiveSuccesses, 1) >= int32(cb.config.SuccessThreshold) {
			cb.transitionTo(StateClosed)
		}
	case StateOpen:
		// transitions out of open happen only via the cool-down probe
	}
}

func (cb *CircuitBreaker) recordFailure() {
	atomic.AddInt64(&cb.totalFailures, 1)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	switch cb.getState() {
	case StateClosed:
		if atomic.AddInt32(&cb.consecutiveFailures, 1) >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateOpen:
	}
}

func (cb *CircuitBreaker) cooldownElapsed() bool {
	lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
	if lastFailure == 0 {
		return true
	}
	return time.Since(time.Unix(0, lastFailure)) >= cb.config.OpenTimeout
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState == newState {
		return
	}

	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateHalfOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.halfOpenRequests, 0)
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) getState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	return cb.getState()
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.consecutiveFailures, 0)
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt32(&cb.halfOpenRequests, 0)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

// Stats is a snapshot of breaker counters.
type Stats struct {
	State           State     `json:"state"`
	TotalRequests   int64     `json:"total_requests"`
	TotalFailures   int64     `json:"total_failures"`
	TotalSuccesses  int64     `json:"total_successes"`
	TotalRejections int64     `json:"total_rejections"`
	FailureRate     float64   `json:"failure_rate"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// GetStats returns current counters.
func (cb *CircuitBreaker) GetStats() Stats {
	requests := atomic.LoadInt64(&cb.totalRequests)
	failures := atomic.LoadInt64(&cb.totalFailures)

	var failureRate float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
	}

	var lastFailure time.Time
	if nanos := atomic.LoadInt64(&cb.lastFailureTime); nanos > 0 {
		lastFailure = time.Unix(0, nanos)
	}

	return Stats{
		State:           cb.getState(),
		TotalRequests:   requests,
		TotalFailures:   failures,
		TotalSuccesses:  atomic.LoadInt64(&cb.totalSuccesses),
		TotalRejections: atomic.LoadInt64(&cb.totalRejections),
		FailureRate:     failureRate,
		LastFailureTime: lastFailure,
	}
}

// Registry holds one breaker per operation kind, created lazily with a
// shared configuration.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	template Config
}

// NewRegistry creates a registry. The config is copied per breaker.
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		template: *config,
	}
}

// Get returns the breaker for an operation kind, creating it on first use.
func (r *Registry) Get(operation string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[operation]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[operation]; ok {
		return cb
	}
	cfg := r.template
	cb = New(&cfg)
	r.breakers[operation] = cb
	return cb
}

// Execute runs fn under the breaker for the given operation kind.
func (r *Registry) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	return r.Get(operation).Execute(ctx, fn)
}

// Stats returns a snapshot per operation kind.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.GetStats()
	}
	return out
}
