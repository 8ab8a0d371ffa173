// Package apperr defines the error kinds shared by the session, pipeline and
// transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can choose between retry, abort and
// the matching HTTP status.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInitialization means no usable workspace exists for a new session.
	KindInitialization
	// KindValidation means a request was missing or had malformed fields.
	KindValidation
	// KindSchema means generated output could not be parsed into the expected shape.
	KindSchema
	// KindGeneration means the backend call failed (network, auth, quota).
	KindGeneration
	// KindConflict means an undo target is not the current commit, or a stream
	// already has a consumer.
	KindConflict
	// KindNotFound means an unknown session, or a fetch that returned nothing.
	KindNotFound
	// KindOverloaded means the worker pool refused admission.
	KindOverloaded
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindValidation:
		return "validation"
	case KindSchema:
		return "schema"
	case KindGeneration:
		return "generation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindOverloaded:
		return "overloaded"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a kind to the response status for synchronous failures.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindSchema, KindGeneration:
		return http.StatusBadGateway
	case KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks.
var (
	ErrInitialization = &Error{Kind: KindInitialization}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrSchema         = &Error{Kind: KindSchema}
	ErrGeneration     = &Error{Kind: KindGeneration}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrOverloaded     = &Error{Kind: KindOverloaded}
)

// Error is a classified error.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "session.GetOrCreate".
	Op  string
	Msg string
	Err error
	// Retryable is set by the generator for transient backend failures.
	Retryable bool
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// New creates a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient generation failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Message returns err's text without the operation prefix, for client display.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Msg != "" && e.Err != nil:
			return e.Msg + ": " + e.Err.Error()
		case e.Msg != "":
			return e.Msg
		case e.Err != nil:
			return e.Err.Error()
		}
	}
	return err.Error()
}
