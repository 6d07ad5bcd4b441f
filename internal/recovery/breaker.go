package recovery

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState is the three-state gate.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenDuration     time.Duration
	FailureWindow    time.Duration
}

// DefaultBreakerConfig matches original_source's CircuitBreakerConfig::default.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenDuration:     30 * time.Second,
		FailureWindow:    60 * time.Second,
	}
}

// CircuitBreaker is an independent three-state gate used both by the
// recovery engine (one per protected dependency) and by the task
// coordinator (one gating admission). Counters are protected by mu rather
// than made fully lock-free, since transitions must be observed
// atomically together with the state (a bare atomic counter could race
// with a concurrent reset/transition).
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	successCount int
	lastFailure  time.Time
	enteredAt    time.Time
}

// NewCircuitBreaker creates a named breaker in the Closed state.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		config:    config,
		state:     StateClosed,
		enteredAt: time.Now(),
	}
}

// State returns the current state, first applying the Open -> HalfOpen
// timeout transition if due.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *CircuitBreaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.config.OpenDuration {
		b.state = StateHalfOpen
		b.successCount = 0
		b.enteredAt = time.Now()
	}
}

// Allow reports whether a call should proceed (CanCall in spec prose).
func (b *CircuitBreaker) Allow() bool {
	switch b.State() {
	case StateClosed, StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess registers a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.enteredAt = time.Now()
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure registers a failed call.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.state = StateOpen
			b.enteredAt = time.Now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successCount = 0
		b.enteredAt = time.Now()
	}
}

// Reset forces the breaker back to Closed with zeroed counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailure = time.Time{}
	b.enteredAt = time.Now()
}

// Name returns the breaker's label, used in log lines by callers.
func (b *CircuitBreaker) Name() string { return b.name }

// Metrics is a set of monotonic, lock-free counters for a RecoveryStrategy.
type Metrics struct {
	TotalAttempts uint64
	Successful    uint64
	Retried       uint64
	Failed        uint64
	CircuitOpened uint64
	FallbacksUsed uint64
}

type atomicMetrics struct {
	totalAttempts atomic.Uint64
	successful    atomic.Uint64
	retried       atomic.Uint64
	failed        atomic.Uint64
	circuitOpened atomic.Uint64
	fallbacksUsed atomic.Uint64
}

func (m *atomicMetrics) snapshot() Metrics {
	return Metrics{
		TotalAttempts: m.totalAttempts.Load(),
		Successful:    m.successful.Load(),
		Retried:       m.retried.Load(),
		Failed:        m.failed.Load(),
		CircuitOpened: m.circuitOpened.Load(),
		FallbacksUsed: m.fallbacksUsed.Load(),
	}
}
