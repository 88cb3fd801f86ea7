package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Stages a merge or query request can fail in.
const (
	OpResolve      = "resolve"
	OpJoin         = "join"
	OpTenantFilter = "tenant_filter"
)

// OpError records which stage of request processing failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WithOp tags err with the stage it came from. A nil err stays nil.
func WithOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// Op returns the stage recorded on err, or "" if none.
func Op(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Op
	}
	return ""
}

// InvalidArgument wraps a formatted message with ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
