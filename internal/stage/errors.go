package stage

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure.
type Kind string

const (
	// KindValidation is missing or malformed input. Never retried.
	KindValidation Kind = "validation"
	// KindCollaborator is a downstream service failure. Retried per policy.
	KindCollaborator Kind = "collaborator"
	// KindTimeout is an attempt that outlived its deadline. Retried per policy.
	KindTimeout Kind = "timeout"
	// KindAggregation is a mandatory fan-out member that failed after retries.
	KindAggregation Kind = "aggregation"
)

// Error is the normalized failure carried by a Result. Error() is the
// underlying message verbatim so callers can surface it unchanged.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation marks err as a non-retryable input problem.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindValidation, Err: err}
}

// Validationf is Validation with fmt.Errorf formatting.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Errorf(format, args...))
}

// Aggregation wraps the failure of a mandatory fan-out member.
func Aggregation(stageID string, err error) *Error {
	return &Error{Kind: KindAggregation, Stage: stageID, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are collaborator failures.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindCollaborator
}

// IsRetryable reports whether the runner should re-invoke after err.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindCollaborator, KindTimeout:
		return true
	default:
		return false
	}
}

// normalize returns err as an *Error attributed to stageID.
func normalize(stageID string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		out := *se
		if out.Stage == "" {
			out.Stage = stageID
		}
		return &out
	}
	return &Error{Kind: KindCollaborator, Stage: stageID, Err: err}
}
