// Package reliability implements the circuit breaker guarding outbound
// calls to the LLM and validator-scrape targets, so a persistently failing
// external dependency can't be retried into a storm.
package reliability

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker bounds retries against one external target: it trips
// open after consecutive failures, waits out a cooldown, then probes with
// a half-open trial before closing again.
type CircuitBreaker struct {
	mu                  sync.RWMutex
	state               CircuitState
	failureCount        int
	successCount        int
	failureThreshold    int
	successThreshold    int
	timeout             time.Duration
	lastFailureTime     time.Time
	lastStateChangeTime time.Time
	openUntil           time.Time
}

// CircuitBreakerConfig configures a CircuitBreaker; zero values fall back
// to the defaults noted per field.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Default: 5
	SuccessThreshold int           // Default: 2
	Timeout          time.Duration // Default: 30s
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		state:               CircuitClosed,
		failureThreshold:    config.FailureThreshold,
		successThreshold:    config.SuccessThreshold,
		timeout:             config.Timeout,
		lastStateChangeTime: time.Now(),
	}
}

// Call runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.AllowRequest() {
		return fmt.Errorf("circuit breaker is OPEN")
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// AllowRequest reports whether a request should be let through right now.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Now().After(cb.openUntil) {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			cb.failureCount = 0
			cb.lastStateChangeTime = time.Now()
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.successCount++

	if cb.state == CircuitHalfOpen && cb.successCount >= cb.successThreshold {
		cb.state = CircuitClosed
		cb.successCount = 0
		cb.lastStateChangeTime = time.Now()
	}
}

// RecordFailure records a failed call outcome.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount = 0
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitOpen
			cb.openUntil = time.Now().Add(cb.timeout)
			cb.lastStateChangeTime = time.Now()
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openUntil = time.Now().Add(cb.timeout)
		cb.lastStateChangeTime = time.Now()
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastStateChangeTime = time.Now()
}

// Stats is a snapshot of a circuit breaker's counters, safe to expose to
// an introspection surface.
type Stats struct {
	State            string    `json:"state"`
	FailureCount     int       `json:"failure_count"`
	SuccessCount     int       `json:"success_count"`
	FailureThreshold int       `json:"failure_threshold"`
	SuccessThreshold int       `json:"success_threshold"`
	TimeoutSeconds   float64   `json:"timeout_seconds"`
	LastFailureTime  time.Time `json:"last_failure_time"`
	OpenUntil        time.Time `json:"open_until"`
}

// GetStats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Stats{
		State:            cb.state.String(),
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		FailureThreshold: cb.failureThreshold,
		SuccessThreshold: cb.successThreshold,
		TimeoutSeconds:   cb.timeout.Seconds(),
		LastFailureTime:  cb.lastFailureTime,
		OpenUntil:        cb.openUntil,
	}
}

// Manager owns one CircuitBreaker per external target (e.g. the LLM
// endpoint, a validator's scrape URL), created lazily on first use.
type Manager struct {
	mu            sync.RWMutex
	breakers      map[string]*CircuitBreaker
	defaultConfig CircuitBreakerConfig
}

// NewManager creates a Manager that builds new breakers with config.
func NewManager(config CircuitBreakerConfig) *Manager {
	return &Manager{breakers: make(map[string]*CircuitBreaker), defaultConfig: config}
}

// GetOrCreate returns the breaker for target, creating it on first use.
func (m *Manager) GetOrCreate(target string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[target]
	if !ok {
		b = NewCircuitBreaker(m.defaultConfig)
		m.breakers[target] = b
	}
	return b
}

// Call runs fn through target's breaker.
func (m *Manager) Call(target string, fn func() error) error {
	return m.GetOrCreate(target).Call(fn)
}
