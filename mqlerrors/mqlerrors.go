// Package mqlerrors defines query translation errors.
package mqlerrors

import (
	"fmt"

	"github.com/go-faster/errors"
)

// UnsupportedError is an error that reports expressions which cannot be
// translated to a MongoDB query.
type UnsupportedError struct {
	// Expr is a textual form of offending expression.
	Expr string
	// Reason is an optional explanation.
	Reason string
}

// Unsupported creates new [UnsupportedError].
func Unsupported(n fmt.Stringer, reason string) *UnsupportedError {
	e := &UnsupportedError{Reason: reason}
	if n != nil {
		e.Expr = n.String()
	}
	return e
}

// Unsupportedf creates new [UnsupportedError] with formatted reason.
func Unsupportedf(n fmt.Stringer, format string, args ...any) *UnsupportedError {
	return Unsupported(n, fmt.Sprintf(format, args...))
}

// Error implements error.
func (e *UnsupportedError) Error() string {
	switch {
	case e.Expr == "":
		return "unsupported expression: " + e.Reason
	case e.Reason == "":
		return fmt.Sprintf("expression %s is not supported", e.Expr)
	default:
		return fmt.Sprintf("expression %s is not supported: %s", e.Expr, e.Reason)
	}
}

// IsUnsupported whether err is or wraps [UnsupportedError].
func IsUnsupported(err error) bool {
	var e *UnsupportedError
	return errors.As(err, &e)
}
