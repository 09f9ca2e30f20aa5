package service

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/support-router/internal/store"
)

// ErrorKind classifies service failures for the transport layer.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindValidation  ErrorKind = "VALIDATION_ERROR"
	KindOwnership   ErrorKind = "OWNERSHIP_ERROR"
	KindUpstream    ErrorKind = "UPSTREAM_ERROR"
	KindPersistence ErrorKind = "PERSISTENCE_ERROR"
)

// Error is returned by every service operation that fails.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("service: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("service: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a service error.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return ""
}

// storeError maps a store failure onto a service error.
func storeError(reason string, err error) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, reason, err)
	default:
		return newError(KindPersistence, reason, err)
	}
}
