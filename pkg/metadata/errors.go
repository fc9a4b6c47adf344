package metadata

import "errors"

// StoreError represents a domain error from metadata or lifecycle operations.
//
// These are business logic errors (path collision, missing entity, invalid
// move) as opposed to infrastructure errors (network failure, disk error).
// The HTTP layer translates ErrorCode values to status codes; the core never
// deals in transport concepts.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the directory/file path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrValidation indicates malformed input (empty filename, oversized
	// path, unknown enum value). Never retried automatically.
	ErrValidation ErrorCode = iota

	// ErrNotFound indicates no such entity is visible to this principal.
	// Deliberately indistinguishable from "exists but forbidden" so that
	// probing cannot leak existence to non-owners.
	ErrNotFound

	// ErrConflict indicates a path collision (a different entity already
	// occupies the target path).
	ErrConflict

	// ErrInvalidOperation indicates a structurally disallowed operation,
	// such as moving a directory into its own subtree or renaming the root.
	ErrInvalidOperation

	// ErrNotEmpty indicates a directory still has child directories and
	// cannot be removed.
	ErrNotEmpty

	// ErrStorageMismatch indicates the object store disagrees with the
	// expected state (verification found no object behind a reserved key).
	ErrStorageMismatch

	// ErrTransient indicates a relational or object-store I/O failure with
	// no state change. Safe for the caller to retry.
	ErrTransient
)

// CodeOf extracts the ErrorCode from err, or (0, false) when err is not a
// StoreError.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsCode reports whether err is a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsNotFound reports whether err is a not-found store error.
func IsNotFound(err error) bool { return IsCode(err, ErrNotFound) }

// IsValidation reports whether err is a validation store error.
func IsValidation(err error) bool { return IsCode(err, ErrValidation) }

// IsConflict reports whether err is a conflict store error.
func IsConflict(err error) bool { return IsCode(err, ErrConflict) }

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool { return IsCode(err, ErrTransient) }
