/*
errors.go - Centralized error types for the tariff core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Oracle clients and stores wrap these errors with additional context.

ERROR CATEGORIES:
  1. Per-item errors - Captured per year or per country, never thrown
     out of a year batch (RateNotFound, Transport)
  2. Precondition errors - Raised before a batch starts
  3. Cancellation errors - A newer calculation superseded this one

USAGE:
  Oracle clients wrap the sentinels:

    return nil, fmt.Errorf("%w: %s", tariff.ErrRateNotFound, reason)

  Callers branch with errors.Is:

    if errors.Is(err, tariff.ErrRateNotFound) { ... }

SEE ALSO:
  - series.go: Folds per-item errors into MissingYearError
  - landedcost/service.go: Raises precondition errors
*/
package tariff

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateNotFound is returned by a Rate Oracle that has no applicable
	// rate for the route, product and date.
	ErrRateNotFound = errors.New("no applicable rate found")

	// ErrTransport is returned when the Rate Oracle or Suspension Directory
	// cannot be reached.
	ErrTransport = errors.New("transport error")

	// ErrInvalidYearRange is returned when startYear is after endYear.
	ErrInvalidYearRange = errors.New("invalid year range: start after end")

	// ErrOracleRequired is returned when a calculation has no oracle to ask.
	ErrOracleRequired = errors.New("rate oracle required")

	// ErrDirectoryUnavailable is returned when suspension intervals cannot
	// be loaded. No query date can be computed without them.
	ErrDirectoryUnavailable = errors.New("suspension directory unavailable")

	// ErrSuperseded is returned when a newer calculation replaced this one
	// before it finished. Its partial output is discarded.
	ErrSuperseded = errors.New("calculation superseded by a newer request")

	// ErrNoCandidates is returned when a comparison names no source country.
	ErrNoCandidates = errors.New("no candidate source countries")

	// ErrSuspensionNotFound is returned when deleting an unknown window.
	ErrSuspensionNotFound = errors.New("suspension not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingYearError records a year for which no rate could be obtained.
type MissingYearError struct {
	Year   int    `json:"year"`
	Reason string `json:"reason"`
}

func (e MissingYearError) Error() string {
	return fmt.Sprintf("year %d: %s", e.Year, e.Reason)
}

// ComparisonError reports the candidate that made a comparison batch fail.
// Comparison is all-or-nothing, so one of these replaces the whole table.
type ComparisonError struct {
	CountryCode string
	Err         error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("comparison failed for %s: %v", e.CountryCode, e.Err)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsNotFound returns true if the error indicates a missing rate or window.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRateNotFound) || errors.Is(err, ErrSuspensionNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidYearRange) ||
		errors.Is(err, ErrNoCandidates)
}
