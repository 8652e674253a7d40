package stage

import "fmt"

// Result is the outcome of one stage: either an output or an error, never both.
type Result[T any] struct {
	ok       bool
	output   T
	err      *Error
	attempts int
}

// Succeeded builds a successful result.
func Succeeded[T any](output T, attempts int) Result[T] {
	return Result[T]{ok: true, output: output, attempts: attempts}
}

// Failed builds a failed result for stageID. A nil err still yields a failure.
func Failed[T any](stageID string, err error, attempts int) Result[T] {
	if err == nil {
		err = fmt.Errorf("stage %s failed", stageID)
	}
	return Result[T]{err: normalize(stageID, err), attempts: attempts}
}

func (r Result[T]) OK() bool { return r.ok }

// Output is the zero value for a failed result.
func (r Result[T]) Output() T { return r.output }

// Err is nil for a successful result.
func (r Result[T]) Err() error {
	if r.ok || r.err == nil {
		return nil
	}
	return r.err
}

// Message is the failure message, empty on success.
func (r Result[T]) Message() string {
	if r.ok || r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Kind is the failure kind, empty on success.
func (r Result[T]) Kind() Kind {
	if r.ok || r.err == nil {
		return ""
	}
	return r.err.Kind
}

// Attempts is how many times the stage was invoked to produce this result.
func (r Result[T]) Attempts() int { return r.attempts }

// Erase drops the output type so results of different stages share a map.
func (r Result[T]) Erase() Result[any] {
	return Result[any]{ok: r.ok, output: r.output, err: r.err, attempts: r.attempts}
}

// Cast restores the output type of an erased result. A type mismatch is
// reported as a failed result rather than a panic.
func Cast[T any](r Result[any]) Result[T] {
	if !r.ok {
		return Result[T]{err: r.err, attempts: r.attempts}
	}
	out, ok := r.output.(T)
	if !ok {
		var zero T
		return Failed[T]("", fmt.Errorf("stage output is %T, expected %T", r.output, zero), r.attempts)
	}
	return Succeeded(out, r.attempts)
}

// Results maps stage id to the final result of that stage.
type Results map[string]Result[any]

// Get returns the typed result for id. ok is false when id is absent.
func Get[T any](rs Results, id string) (Result[T], bool) {
	r, ok := rs[id]
	if !ok {
		return Result[T]{}, false
	}
	return Cast[T](r), true
}
