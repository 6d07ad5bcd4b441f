package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker rejects the call
// without invoking the operation.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Operation is a zero-arg, context-aware, fallible producer — the unit the
// recovery engine wraps.
type Operation[T any] func(ctx context.Context) (T, error)

// Strategy combines a retry policy with an optional circuit breaker, per
// spec §4.3's Algorithm. It has no fallback value: a failed Execute always
// returns the error, and Metrics.FallbacksUsed stays zero. Grounded on
// original_source/src/agent/recovery.rs RecoveryStrategy.
type Strategy struct {
	name    string
	policy  RetryPolicy
	breaker *CircuitBreaker
	metrics atomicMetrics
}

// NewStrategy creates a strategy with the default retry policy and no
// circuit breaker.
func NewStrategy(name string) *Strategy {
	return &Strategy{name: name, policy: DefaultRetryPolicy()}
}

// WithRetry overrides the retry policy.
func (s *Strategy) WithRetry(policy RetryPolicy) *Strategy {
	s.policy = policy
	return s
}

// WithBreaker attaches a circuit breaker.
func (s *Strategy) WithBreaker(b *CircuitBreaker) *Strategy {
	s.breaker = b
	return s
}

// Execute runs operation per spec §4.3's algorithm:
//
//	for attempt in 0..=max_retries:
//	  if breaker and not breaker.allow(): return CircuitOpen
//	  r ← operation()
//	  if r is Ok: breaker.record_success(); return r
//	  class ← classify(r.error)
//	  breaker.record_failure()
//	  if not class.retryable() or attempt == max_retries: return r.error
//	  sleep(backoff(attempt))
func Execute[T any](ctx context.Context, s *Strategy, op Operation[T]) (T, error) {
	var zero T
	s.metrics.totalAttempts.Add(1)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if s.breaker != nil && !s.breaker.Allow() {
			s.metrics.circuitOpened.Add(1)
			return zero, fmt.Errorf("%s: %w", s.name, ErrCircuitOpen)
		}

		result, err := op(ctx)
		if err == nil {
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			s.metrics.successful.Add(1)
			return result, nil
		}

		class := Classify(err)
		if s.breaker != nil {
			s.breaker.RecordFailure()
		}
		lastErr = err

		if !class.Retryable() || attempt >= s.policy.MaxRetries {
			s.metrics.failed.Add(1)
			return zero, lastErr
		}

		s.metrics.retried.Add(1)
		delay := s.policy.DelayForAttempt(attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Stats returns a point-in-time snapshot, plus the derived stats view.
func (s *Strategy) Stats() Stats {
	m := s.metrics.snapshot()
	return Stats{Name: s.name, Metrics: m}
}

// Stats wraps Metrics with the named strategy and derived formatting,
// grounded on original_source/src/agent/recovery.rs RecoveryStats.
type Stats struct {
	Name string
	Metrics
}

// SuccessRate is successful / total_attempts, or 1.0 when no attempts have
// been made yet.
func (s Stats) SuccessRate() float64 {
	if s.TotalAttempts == 0 {
		return 1.0
	}
	return float64(s.Successful) / float64(s.TotalAttempts)
}

// Format renders a one-line human-readable summary.
func (s Stats) Format() string {
	return fmt.Sprintf("%s: %.1f%% success (%d/%d attempts, %d retries, %d failed)",
		s.Name, s.SuccessRate()*100, s.Successful, s.TotalAttempts, s.Retried, s.Failed)
}
