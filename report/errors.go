/*
errors.go - Centralized error types for the scoring engine

PURPOSE:
  All core error types in one place for consistency and discoverability.
  Outer layers (HTTP handlers) map these onto status codes.

ERROR CATEGORIES:
  1. Input rejection   - user-fixable file problems (4xx-equivalent)
  2. Query validation  - malformed parameters rejected before storage access
  3. Persistence       - transaction failures (5xx-equivalent)

  Parse-level anomalies (unparseable dates, unknown header labels, rows
  without an identity) are NOT errors: those rows are dropped and logged.

USAGE:
  Check with errors.Is for sentinels, errors.As for structured errors:

    if errors.Is(err, report.ErrUnsupportedFormat) { ... }

    var nvr *report.NoValidRowsError
    if errors.As(err, &nvr) { ... }

SEE ALSO:
  - api/handlers.go: status-code mapping
  - ingest: producers of the input-rejection errors
*/
package report

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFileTooLarge is returned before parsing when an input file exceeds
	// the fixed size cap.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

	// ErrUnsupportedFormat is returned when a file extension is neither a
	// delimited-text nor spreadsheet type.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoValidRows is returned when a parsed file yields zero member rows
	// after normalization. Wrapped by NoValidRowsError.
	ErrNoValidRows = errors.New("no valid member rows detected")

	// ErrNoScores is returned when scoring produced an empty batch.
	ErrNoScores = errors.New("no scores to persist")

	// ErrMissingNameColumns is returned when a training report has no
	// detectable first/last name header.
	ErrMissingNameColumns = errors.New("training report missing first/last name columns")

	// ErrUploadNotFound is returned when a referenced upload doesn't exist.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvalidDateRange is returned for malformed or reversed date ranges.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoValidRowsError explains, in user-facing terms, what a main report must
// look like for rows to be recognized. Surfaced verbatim to the uploader.
type NoValidRowsError struct {
	FileName string
}

func (e *NoValidRowsError) Error() string {
	return "No valid member rows detected.\n" +
		"Please ensure your file has:\n" +
		"1. A header row with either:\n" +
		"   - 'First Name' and 'Last Name' columns, OR\n" +
		"   - 'Member' or 'Name' column\n" +
		"2. Data rows below the header with member information\n" +
		"3. At least one numeric column (P, A, L, M, S, etc.)"
}

func (e *NoValidRowsError) Unwrap() error { return ErrNoValidRows }

// FileTooLargeError reports the offending size alongside the cap.
type FileTooLargeError struct {
	Size int
	Max  int
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file size %d bytes exceeds maximum allowed size of %d bytes", e.Size, e.Max)
}

func (e *FileTooLargeError) Unwrap() error { return ErrFileTooLarge }

// UnsupportedFormatError names the rejected extension and the accepted set.
type UnsupportedFormatError struct {
	FileName string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type %q: upload .csv or .xlsx", e.FileName)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }
