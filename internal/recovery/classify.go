// Package recovery implements error classification, retry with exponential
// backoff and jitter, and an independent circuit breaker, per spec §4.3.
// Grounded on original_source/src/agent/recovery.rs, translated from
// tokio primitives to context.Context and lock-free atomics.
package recovery

import (
	"errors"
	"strings"

	"github.com/kaelvex/fabricd/internal/types"
)

// ErrorClass is the recovery engine's own classification, independent of
// (but overlapping with) the bridge-facing types.ErrorCategory.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassRateLimited
	ClassResourceUnavailable
	ClassValidationError
	ClassAuthError
	ClassSystemError
	ClassUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "Transient"
	case ClassRateLimited:
		return "RateLimited"
	case ClassResourceUnavailable:
		return "ResourceUnavailable"
	case ClassValidationError:
		return "ValidationError"
	case ClassAuthError:
		return "AuthError"
	case ClassSystemError:
		return "SystemError"
	default:
		return "Unknown"
	}
}

// Retryable reports whether operations of this class are worth retrying.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassTransient, ClassRateLimited, ClassResourceUnavailable, ClassUnknown:
		return true
	default:
		return false
	}
}

// StructuredError lets a caller attach an explicit ErrorClass instead of
// relying on substring matching, per the spec's Open Question 3 resolution
// (DESIGN.md): structural codes first, substring matching as a fallback
// for legacy/plain errors.
type StructuredError struct {
	Class ErrorClass
	Err   error
}

func (e *StructuredError) Error() string { return e.Err.Error() }
func (e *StructuredError) Unwrap() error { return e.Err }

// Category maps the structured class to the bridge-facing taxonomy.
func (e *StructuredError) Category() types.ErrorCategory {
	switch e.Class {
	case ClassValidationError:
		return types.ErrValidation
	case ClassAuthError:
		return types.ErrAuthentication
	case ClassRateLimited, ClassTransient, ClassResourceUnavailable, ClassUnknown:
		return types.ErrTransient
	default:
		return types.ErrInternal
	}
}

// Classify determines an error's class. It first looks for a
// *StructuredError via errors.As; only plain errors fall back to
// lowercased substring matching against Error(), in this fixed priority
// order (spec §4.3):
//
//	"rate limit"/"too many requests"/"429"  → RateLimited
//	"timeout"/"connection"/"temporary"      → Transient
//	"not found"/"unavailable"/"503"         → ResourceUnavailable
//	"invalid"/"validation"/"400"            → ValidationError
//	"unauthorized"/"forbidden"/"401"/"403"  → AuthError
//	"internal"/"500"/"panic"                → SystemError
//	otherwise                                → Unknown
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	var structured *StructuredError
	if errors.As(err, &structured) {
		return structured.Class
	}
	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, "rate limit", "too many requests", "429"):
		return ClassRateLimited
	case containsAny(lower, "timeout", "connection", "temporary"):
		return ClassTransient
	case containsAny(lower, "not found", "unavailable", "503"):
		return ClassResourceUnavailable
	case containsAny(lower, "invalid", "validation", "400"):
		return ClassValidationError
	case containsAny(lower, "unauthorized", "forbidden", "401", "403"):
		return ClassAuthError
	case containsAny(lower, "internal", "500", "panic"):
		return ClassSystemError
	default:
		return ClassUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
