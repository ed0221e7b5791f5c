package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the collection pipeline. Boundaries (quote adapter,
// persistence, broker client) classify driver errors into one of these;
// the fetch engine and consumer only ever branch on the sentinels.

var (
	// ErrConfig indicates an invalid or missing configuration value.
	// Fatal at startup, never retried.
	ErrConfig = errors.New("configuration error")

	// ErrTransient indicates a temporary infrastructure failure
	// (network blip, provider 5xx, connection drop). Retried with backoff.
	ErrTransient = errors.New("transient failure")

	// ErrRateLimited indicates explicit throttling by the quote provider.
	// Retried like a transient failure and recorded by the rate-limit tracker.
	ErrRateLimited = errors.New("rate limited")

	// ErrPermanentData indicates a per-symbol data error (unknown symbol,
	// malformed record). Not retried; the symbol is dropped for the run.
	ErrPermanentData = errors.New("permanent data error")

	// ErrCatastrophic indicates a failure the pipeline cannot recover from
	// (pool exhaustion, broker gone). The process exits and is restarted.
	ErrCatastrophic = errors.New("catastrophic failure")
)

// General-purpose sentinels shared across services and repositories.

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrIllegalTransition indicates a forbidden job status transition
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrUnavailable indicates a dependency is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Retryable reports whether the pipeline should retry after err.
// Only transient failures and throttling qualify.
func Retryable(err error) bool {
	return Is(err, ErrTransient) || Is(err, ErrRateLimited)
}
