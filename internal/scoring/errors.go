package scoring

import (
	"errors"
	"fmt"

	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/inference"
)

// Kind classifies a scoring failure.
type Kind string

const (
	KindMalformedInput  Kind = "malformed_input"
	KindSchemaMismatch  Kind = "schema_mismatch"
	KindModelInvocation Kind = "model_invocation_failure"
	KindInternal        Kind = "internal"
)

// Sentinel errors, re-exported so callers need only this package.
var (
	ErrMalformedInput  = features.ErrMalformedInput
	ErrSchemaMismatch  = inference.ErrSchemaMismatch
	ErrModelInvocation = inference.ErrModelInvocation
)

// Error is returned by Service.Score. Err keeps the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, ErrModelInvocation):
		return KindModelInvocation
	default:
		return KindInternal
	}
}

func classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindOf(err), Err: err}
}

func panicError(v any) *Error {
	return &Error{
		Kind: KindModelInvocation,
		Err:  fmt.Errorf("%w: panic: %v", ErrModelInvocation, v),
	}
}
