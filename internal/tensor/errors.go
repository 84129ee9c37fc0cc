package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned (wrapped in a *ShapeError) whenever an
// operation receives buffers whose sizes are inconsistent with each other or
// with the requested geometry.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError provides detailed information about a shape precondition failure.
type ShapeError struct {
	Op      string // Operation that rejected its operands (e.g. "im2col")
	Details string // Human readable description
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrShapeMismatch, e.Details)
}

// Unwrap makes errors.Is(err, ErrShapeMismatch) work.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// Mismatch builds a *ShapeError for op with a formatted description.
func Mismatch(op, format string, args ...any) error {
	return &ShapeError{Op: op, Details: fmt.Sprintf(format, args...)}
}
