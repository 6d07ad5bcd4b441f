package bridge

import (
	"context"
	"errors"
	"net/http"

	"github.com/kaelvex/fabricd/internal/recovery"
	"github.com/kaelvex/fabricd/internal/types"
)

// mapError implements spec §4.8's error-category mapping: context
// deadline exceeded maps to a timeout; recovery.ErrCircuitOpen maps to
// 503; structured component errors (anything implementing
// types.CategorizedError) map by their category;
// everything else is Internal with a sanitized message that never
// echoes the original error text (which may carry credential or path
// detail).
func mapError(err error) (status int, message string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "deadline exceeded"
	}
	if errors.Is(err, recovery.ErrCircuitOpen) {
		return http.StatusServiceUnavailable, "circuit open"
	}

	var categorized types.CategorizedError
	if errors.As(err, &categorized) {
		return categoryStatus(categorized.Category())
	}

	return http.StatusInternalServerError, "internal error"
}

func categoryStatus(cat types.ErrorCategory) (int, string) {
	switch cat {
	case types.ErrAuthentication:
		return http.StatusUnauthorized, "unauthenticated"
	case types.ErrPermission:
		return http.StatusForbidden, "permission denied"
	case types.ErrNotFound:
		return http.StatusNotFound, "not found"
	case types.ErrResourceExhausted:
		return http.StatusTooManyRequests, "resource exhausted"
	case types.ErrValidation:
		return http.StatusBadRequest, "invalid argument"
	case types.ErrTimeout:
		return http.StatusGatewayTimeout, "deadline exceeded"
	case types.ErrTransient:
		return http.StatusServiceUnavailable, "temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
