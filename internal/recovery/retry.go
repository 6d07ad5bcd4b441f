package recovery

import (
	"math/rand"
	"time"
)

// RetryPolicy configures backoff-with-jitter, per spec §4.3.
type RetryPolicy struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BackoffMultiplier float64
	AddJitter        bool
	JitterFactor     float64
}

// DefaultRetryPolicy matches original_source's RetryPolicy::default().
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		AddJitter:         true,
		JitterFactor:      0.2,
	}
}

// AggressiveRetryPolicy: many fast retries. Grounded on
// original_source/src/agent/recovery.rs RetryPolicy::aggressive.
func AggressiveRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        5,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 1.5,
		AddJitter:         true,
		JitterFactor:      0.1,
	}
}

// ConservativeRetryPolicy: few slow retries.
func ConservativeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 3.0,
		AddJitter:         true,
		JitterFactor:      0.3,
	}
}

// RateLimitAwareRetryPolicy backs off harder, suited to 429 responses.
func RateLimitAwareRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialDelay:      5 * time.Second,
		MaxDelay:          120 * time.Second,
		BackoffMultiplier: 2.5,
		AddJitter:         true,
		JitterFactor:      0.2,
	}
}

// DelayForAttempt computes the backoff delay for attempt n (0-indexed):
// base = initial * multiplier^n, capped at max_delay; if jitter is
// enabled the result is scaled by a uniform factor in
// [1-jitter_factor, 1+jitter_factor], clamped at zero.
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	base := p.InitialDelay.Seconds() * pow(p.BackoffMultiplier, attempt)
	capped := base
	if max := p.MaxDelay.Seconds(); capped > max {
		capped = max
	}

	delay := capped
	if p.AddJitter {
		jitter := capped * p.JitterFactor * (rand.Float64()*2 - 1)
		delay = capped + jitter
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay * float64(time.Second))
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
