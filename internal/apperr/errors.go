// Package apperr defines the typed errors shared by the import and analysis
// pipeline. Every failure carries a Kind so callers (CLI, HTTP API, worker)
// can react to the category without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorises an application error.
type Kind string

const (
	KindUnsupportedFormat      Kind = "UNSUPPORTED_FORMAT"
	KindInconsistentDimensions Kind = "INCONSISTENT_DIMENSIONS"
	KindEmptyDataframe         Kind = "EMPTY_DATAFRAME"
	KindInvalidComponentCount  Kind = "INVALID_COMPONENT_COUNT"
	KindMissingSessionMetadata Kind = "MISSING_SESSION_METADATA"
	KindZeroVariance           Kind = "ZERO_VARIANCE"
	KindInvalidInput           Kind = "INVALID_INPUT"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
	KindStorage                Kind = "STORAGE"
)

// Error is an application error with a kind, a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind. This lets the
// package sentinels below match any error of their category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithContext attaches a key/value pair for logging and API details.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedFormat      = &Error{Kind: KindUnsupportedFormat, Message: "unsupported file format"}
	ErrInconsistentDimensions = &Error{Kind: KindInconsistentDimensions, Message: "inconsistent dimensions"}
	ErrEmptyDataframe         = &Error{Kind: KindEmptyDataframe, Message: "dataframe is empty"}
	ErrInvalidComponentCount  = &Error{Kind: KindInvalidComponentCount, Message: "invalid component count"}
	ErrMissingSessionMetadata = &Error{Kind: KindMissingSessionMetadata, Message: "session metadata is incomplete"}
	ErrZeroVariance           = &Error{Kind: KindZeroVariance, Message: "column has zero spread"}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict               = &Error{Kind: KindConflict, Message: "conflict"}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
