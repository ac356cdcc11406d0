package inventory

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInventory matches every error produced by the inventory.
	ErrInventory = errors.New("inventory error")

	ErrNotFound          = errors.New("not found")
	ErrEmpty             = errors.New("empty inventory")
	ErrParse             = errors.New("parse error")
	ErrValidation        = errors.New("validation error")
	ErrDuplicateHostname = errors.New("duplicate hostname")
	ErrDuplicateAddress  = errors.New("duplicate address")
	ErrInvalidScope      = errors.New("invalid scope")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrWriteFailed       = errors.New("write failed")
	ErrConflict          = errors.New("concurrent modification")
)

// Error is an inventory error of a specific kind.
type Error struct {
	// One of the Err* sentinels.
	Kind error
	// What failed and which entity was implicated.
	Message string
	// Optional remediation hint.
	Hint string
	// Underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Hint) > 0 {
		b.WriteString("\n\n")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Is matches the error kind and the umbrella ErrInventory.
func (e *Error) Is(target error) bool {
	return target == e.Kind || target == ErrInventory
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, hint string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Hint:    hint,
	}
}

func wrapError(err error, kind error, hint string, format string, args ...interface{}) *Error {
	e := newError(kind, hint, format, args...)
	e.Err = err

	return e
}
