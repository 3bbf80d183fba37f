// Package apierr defines the API error taxonomy used throughout Folio.
package apierr

import "fmt"

// Error represents an API error with a machine-readable kind, a
// human-readable message, and the HTTP status code it maps to.
type Error struct {
	// Kind is the error kind (e.g., "InvalidIdentifier", "NotFound").
	Kind string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 404, 400).
	HTTPStatus int
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatus, e.Message)
}

// WithMessage returns a copy of the Error with the given message. The kind
// and status of the original are preserved, so errors.Is comparisons against
// the sentinel still work through Is below.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// Is reports whether target is an *Error of the same kind, so sentinel
// comparisons survive WithMessage copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Pre-defined API errors for common conditions.
var (
	// ErrInvalidIdentifier is returned when a resource identifier is
	// malformed. No repository lookup is attempted.
	ErrInvalidIdentifier = &Error{
		Kind:       "InvalidIdentifier",
		Message:    "Invalid record id",
		HTTPStatus: 400,
	}

	// ErrMissingRequiredField is returned when a create payload is missing
	// a mandatory field.
	ErrMissingRequiredField = &Error{
		Kind:       "MissingRequiredField",
		Message:    "Required field is missing",
		HTTPStatus: 400,
	}

	// ErrValidation is returned when an update would leave a record in a
	// state that violates its collection's field constraints.
	ErrValidation = &Error{
		Kind:       "ValidationError",
		Message:    "Invalid field value",
		HTTPStatus: 400,
	}

	// ErrNotFound is returned when a well-formed identifier matches no record.
	ErrNotFound = &Error{
		Kind:       "NotFound",
		Message:    "Record not found",
		HTTPStatus: 404,
	}

	// ErrMissingFile is returned when an upload request carries no file.
	ErrMissingFile = &Error{
		Kind:       "MissingFile",
		Message:    "No file uploaded",
		HTTPStatus: 400,
	}

	// ErrPayloadTooLarge is returned when an uploaded file exceeds the
	// configured size limit.
	ErrPayloadTooLarge = &Error{
		Kind:       "PayloadTooLarge",
		Message:    "Uploaded file is too large",
		HTTPStatus: 413,
	}

	// ErrStorageWrite is returned when the media store fails to persist an
	// uploaded file.
	ErrStorageWrite = &Error{
		Kind:       "StorageWriteError",
		Message:    "Server Error",
		HTTPStatus: 500,
	}

	// ErrInternal is the catch-all for unexpected faults. The message is
	// deliberately generic so internal detail never reaches the caller.
	ErrInternal = &Error{
		Kind:       "ServerError",
		Message:    "Server Error",
		HTTPStatus: 500,
	}
)
