package types

// ErrorCategory is the §7 error taxonomy, carried by typed component errors
// and mapped to bridge status codes at the edge.
type ErrorCategory string

const (
	ErrValidation        ErrorCategory = "Validation"
	ErrAuthentication    ErrorCategory = "Authentication"
	ErrPermission        ErrorCategory = "Permission"
	ErrNotFound          ErrorCategory = "NotFound"
	ErrTransient         ErrorCategory = "Transient"
	ErrResourceExhausted ErrorCategory = "ResourceExhausted"
	ErrTimeout           ErrorCategory = "Timeout"
	ErrInternal          ErrorCategory = "Internal"
)

// CategorizedError is implemented by every component's typed error so the
// bridge and recovery engine can classify without string matching when a
// structural code is available (see DESIGN.md Open Question 3).
type CategorizedError interface {
	error
	Category() ErrorCategory
}
