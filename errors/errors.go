// Package errors provides error handling for dataq.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Wrap with context
//	if err := store.CommitReport(ctx, report); err != nil {
//	    return errors.Wrapf(err, "failed to commit report for %s", id)
//	}
//
//	// Classify with a domain sentinel
//	return errors.Mark(errors.Newf("row %d has %d fields", n, got), errors.ErrParse)
//
//	// Check errors
//	if errors.Is(err, errors.ErrJobInProgress) {
//	    // reject duplicate trigger
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Generic sentinel errors. Wrap these with errors.Wrap() to add context while
// preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates the request lacks an owner identity
	ErrUnauthorized = New("unauthorized")

	// ErrTooLarge indicates an upload exceeded the configured size limit
	ErrTooLarge = New("payload too large")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
