// Package xerrors defines the error kinds shared across the control plane,
// mirroring the classification every HTTP handler and TQ dispatcher maps to a
// status code or a structured {noop, reason} result.
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error the way the HTTP and TQ layers need to react to it.
type Kind string

const (
	// KindValidation marks malformed input; never retried.
	KindValidation Kind = "validation"
	// KindPrecondition marks a version/voteId mismatch, a closed poll, or a
	// duplicate vote; never retried by the service that observed it.
	KindPrecondition Kind = "precondition_mismatch"
	// KindNotFound marks a missing StationRecord/Song/stubbed fallback.
	KindNotFound Kind = "not_found"
	// KindUnavailable marks a DS/KV/TQ dependency that could not be reached.
	KindUnavailable Kind = "dependency_unavailable"
	// KindCorrupt marks an observed invariant violation.
	KindCorrupt Kind = "corrupt_state"
)

// Error is a typed domain error carrying a Kind, a stable Reason slug (used
// verbatim in {noop, reason} responses), and the underlying cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Validation builds a KindValidation error.
func Validation(reason string, err error) *Error { return newf(KindValidation, reason, err) }

// Precondition builds a KindPrecondition error.
func Precondition(reason string, err error) *Error { return newf(KindPrecondition, reason, err) }

// NotFound builds a KindNotFound error.
func NotFound(reason string, err error) *Error { return newf(KindNotFound, reason, err) }

// Unavailable builds a KindUnavailable error.
func Unavailable(reason string, err error) *Error { return newf(KindUnavailable, reason, err) }

// Corrupt builds a KindCorrupt error.
func Corrupt(reason string, err error) *Error { return newf(KindCorrupt, reason, err) }

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// StatusCode maps a Kind to the HTTP status spec.md §7 assigns it.
// NotFound is mapped to 500 here: in every external interface this error
// kind represents a system-state gap (missing StationRecord/stubbed
// fallback), not a client addressing mistake.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPrecondition:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusInternalServerError
	case KindUnavailable:
		return http.StatusInternalServerError
	case KindCorrupt:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
