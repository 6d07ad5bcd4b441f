package vault

import (
	"errors"
	"fmt"

	"github.com/kaelvex/fabricd/internal/types"
)

// ErrInvalidKey is returned by Unlock when the supplied password does not
// decrypt every stored record. It carries no information about why
// (no partial-match detail), so repeated attempts cannot be used to
// narrow down the password.
var ErrInvalidKey = errors.New("vault: invalid key")

// ErrLocked is returned by any mutating or reading operation performed
// while the vault is locked.
var ErrLocked = errors.New("vault: locked")

// ErrNotFound is returned when a named credential does not exist.
var ErrNotFound = errors.New("vault: credential not found")

// Error is the vault's typed error, carrying a §7 taxonomy category so
// callers (and the bridge) can classify without string matching, per
// types.CategorizedError.
type Error struct {
	Op  string
	Cat types.ErrorCategory
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vault: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Category() types.ErrorCategory { return e.Cat }

func wrapErr(op string, cat types.ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Cat: cat, Err: err}
}
