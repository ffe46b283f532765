package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	Validation Kind = iota + 1
	NotFound
	Expired
	Conflict
	Forbidden
	Storage
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case Storage:
		return "storage"
	}
	return "unknown"
}

// Error is a user-displayable failure. Code is a stable reason identifier
// (e.g. "expired_code") and Message the human-readable text.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New creates a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code, so wrapped copies of a
// sentinel still compare equal with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap attaches a cause to a copy of the sentinel.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// Validationf builds an ad-hoc validation error for malformed input.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

// StorageErr wraps a backing-store failure. The cause stays server-side.
func StorageErr(err error) *Error {
	return &Error{Kind: Storage, Code: "storage_error", Message: "storage unavailable", Err: err}
}

// KindOf returns the kind of err, defaulting to Storage for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

// As extracts the *Error from err. Unclassified errors are reported as storage failures.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return StorageErr(err)
}
