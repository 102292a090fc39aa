package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation policy decisions (HTTP mapping,
// retryability, logging level).
type Kind string

const (
	// KindNotFound: a SEU, energy source, baseline, or model is absent.
	KindNotFound Kind = "not_found"
	// KindValidation: malformed or out-of-range input (unknown feature,
	// bad period token, target year before baseline year, ...).
	KindValidation Kind = "validation"
	// KindInsufficientData: a training window below the minimum sample
	// count, or a feature too sparse to fit against.
	KindInsufficientData Kind = "insufficient_data"
	// KindDegenerateModel: a rank-deficient feature matrix; the fit would
	// produce undefined coefficients.
	KindDegenerateModel Kind = "degenerate_model"
	// KindAggregationTimeout: an aggregation query exceeded its deadline.
	// Always retryable.
	KindAggregationTimeout Kind = "aggregation_timeout"
	// KindConflict: a storage-level uniqueness or transition conflict.
	KindConflict Kind = "conflict"
	// KindInternal: everything else.
	KindInternal Kind = "internal"
)

// Error is a structured application error. Validation and not-found errors
// carry the set of valid alternatives so callers see what they could have
// asked for instead of an opaque failure.
type Error struct {
	Kind         Kind
	Message      string
	Alternatives []string // valid inputs, when enumerable
	Retryable    bool
	Cause        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Alternatives) > 0 {
		msg += fmt.Sprintf(" (valid: %s)", strings.Join(e.Alternatives, ", "))
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the retry
// package can classify without importing this one.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NotFound reports an absent entity.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NotFoundWithAlternatives reports an absent entity along with the names
// that do exist.
func NotFoundWithAlternatives(message string, alternatives []string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Alternatives: alternatives}
}

// Validation reports rejected input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithAlternatives reports rejected input along with the accepted
// values (e.g. the valid feature set for an energy source).
func ValidationWithAlternatives(message string, alternatives []string) *Error {
	return &Error{Kind: KindValidation, Message: message, Alternatives: alternatives}
}

// InsufficientData reports a window or feature too sparse to train on.
func InsufficientData(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientData, Message: fmt.Sprintf(format, args...)}
}

// DegenerateModel reports a rank-deficient fit.
func DegenerateModel(format string, args ...any) *Error {
	return &Error{Kind: KindDegenerateModel, Message: fmt.Sprintf(format, args...)}
}

// AggregationTimeout wraps a query deadline failure. Retryable by policy.
func AggregationTimeout(cause error) *Error {
	return &Error{
		Kind:      KindAggregationTimeout,
		Message:   "aggregation query exceeded its deadline",
		Retryable: true,
		Cause:     cause,
	}
}

// Conflict reports a storage-level conflict (duplicate window, invalid
// status transition).
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// KindOf extracts the Kind from any error chain; unknown errors are
// KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool   { return IsKind(err, KindNotFound) }
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsRetryable reports whether err declares itself retryable.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
