// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Configuration errors (100-199): Missing or invalid options, bad parameters
//   - Data errors (200-299): Feed gaps, out-of-order bars, missing history
//   - Indicator errors (300-399): Graph construction and node lookup errors
//   - Order errors (400-499): Sizing, creation, and validation errors
//   - Broker errors (500-599): Venue failures, rejections, position errors
//   - Engine errors (600-699): Event loop and state errors
//   - Persistence errors (700-799): Store and query failures
//
// Usage:
//
//	err := errors.New(errors.ErrCodeOrderRejected, "venue refused order")
//	err := errors.Newf(errors.ErrCodeDataGap, "duplicate bar for %s", asset)
//	err := errors.Wrap(errors.ErrCodeTransientVenue, "ticker fetch failed", cause)
//	if errors.HasCode(err, errors.ErrCodeTransientVenue) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsTransient reports whether the error is a recoverable venue failure
// (network, RPC, timeout). The event loop logs these and keeps going with
// the last known state.
func IsTransient(err error) bool {
	return HasCode(err, ErrCodeTransientVenue)
}

// IsInvariantViolation reports whether the error is a fatal strategy
// invariant violation. The event loop stops consuming bars for the
// offending strategy instance when it sees one.
func IsInvariantViolation(err error) bool {
	return HasCode(err, ErrCodeInvariantViolation)
}

// InsufficientHistoryError is returned when an indicator or warmup step
// requires more history than the feed can provide.
type InsufficientHistoryError struct {
	Required int    // Minimum number of bars required
	Actual   int    // Bars actually available
	AssetKey string // Optional: asset context
	Message  string
}

// NewInsufficientHistoryError creates a new InsufficientHistoryError.
func NewInsufficientHistoryError(required, actual int, assetKey, message string) *InsufficientHistoryError {
	return &InsufficientHistoryError{
		Required: required,
		Actual:   actual,
		AssetKey: assetKey,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *InsufficientHistoryError) Error() string {
	return e.Message
}

// IsInsufficientHistoryError checks if an error is an InsufficientHistoryError.
// It uses errors.As to check the error chain.
func IsInsufficientHistoryError(err error) bool {
	var insufficientErr *InsufficientHistoryError

	return errors.As(err, &insufficientErr)
}
