package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to API callers.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Error pairs an error kind with the message shown to the caller.
type Error struct {
	Kind   error
	Detail string
}

func NewError(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// UpstreamError describes a failed call to the market-data API.
// Status is zero when no HTTP response was received.
type UpstreamError struct {
	Operation string
	Status    int
	Message   string
	Err       error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("upstream %s returned status %d: %s", e.Operation, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s failed: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("upstream %s failed: %s", e.Operation, e.Message)
	}
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
