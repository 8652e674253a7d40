package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"video-pipeline-go/internal/logger"
)

// Spec identifies a stage and how it is run. Invoke must tolerate being
// re-invoked after a partial failure.
type Spec[In, Out any] struct {
	ID      string
	Invoke  func(ctx context.Context, in In) (Out, error)
	Timeout time.Duration
	Retry   RetryPolicy
}

// Runner executes stage specs under a per-attempt deadline and a retry policy.
// Every failure, including a panic in Invoke, ends up in the returned Result.
type Runner struct {
	log *logrus.Entry
	// timer drives the waits between attempts; nil uses real time.
	timer backoff.Timer
}

// NewRunner returns a runner logging through log (nil discards).
func NewRunner(log *logrus.Entry) *Runner {
	if log == nil {
		log = logger.Discard().Entry
	}
	return &Runner{log: log}
}

// WithLogger returns a copy of r logging through log.
func (r *Runner) WithLogger(log *logrus.Entry) *Runner {
	cp := *r
	if log != nil {
		cp.log = log
	}
	return &cp
}

// WithTimer returns a copy of r that waits on t between attempts.
func (r *Runner) WithTimer(t backoff.Timer) *Runner {
	cp := *r
	cp.timer = t
	return &cp
}

// Run invokes spec with input until it succeeds, fails with a non-retryable
// error, or exhausts spec.Retry.MaxAttempts. Only the final attempt is reported.
func Run[In, Out any](ctx context.Context, r *Runner, spec Spec[In, Out], input In) Result[Out] {
	if spec.Invoke == nil {
		return Failed[Out](spec.ID, Validationf("stage %s has no invoke function", spec.ID), 0)
	}
	res := r.execute(ctx, spec.ID, spec.Timeout, spec.Retry, func(ctx context.Context) (any, error) {
		return spec.Invoke(ctx, input)
	})
	return Cast[Out](res)
}

func (r *Runner) execute(ctx context.Context, id string, timeout time.Duration, policy RetryPolicy, call func(context.Context) (any, error)) Result[any] {
	log := r.log.WithField("stage", id)
	start := time.Now()

	var (
		attempts int
		output   any
		lastErr  error
	)
	op := func() error {
		attempts++
		out, err := r.attempt(ctx, id, timeout, call)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		output = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt":    attempts,
			"kind":       KindOf(err),
			"error":      err.Error(),
			"next_retry": wait.String(),
		}).Warn("stage attempt failed, retrying")
	}

	if err := backoff.RetryNotifyWithTimer(op, policy.backOff(ctx), notify, r.timer); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		log.WithFields(logrus.Fields{
			"attempts":    attempts,
			"kind":        KindOf(lastErr),
			"error":       lastErr.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Error("stage failed")
		return Failed[any](id, lastErr, attempts)
	}

	log.WithFields(logrus.Fields{
		"attempts":    attempts,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("stage succeeded")
	return Succeeded(output, attempts)
}

// attempt runs call once under the stage deadline. The caller returns as soon
// as the deadline passes even if call ignores ctx.
func (r *Runner) attempt(ctx context.Context, id string, timeout time.Duration, call func(context.Context) (any, error)) (any, error) {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		out any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("stage %s panicked: %v", id, p)}
			}
		}()
		out, err := call(actx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			return o.out, nil
		}
		if timedOut(ctx, actx) {
			return nil, timeoutError(id, timeout)
		}
		return nil, o.err
	case <-actx.Done():
		if timedOut(ctx, actx) {
			return nil, timeoutError(id, timeout)
		}
		return nil, &Error{Kind: KindCollaborator, Stage: id, Err: fmt.Errorf("stage %s canceled: %w", id, ctx.Err())}
	}
}

// timedOut is true when the attempt's own deadline fired, not the caller's.
func timedOut(parent, attempt context.Context) bool {
	return errors.Is(attempt.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

func timeoutError(id string, timeout time.Duration) *Error {
	return &Error{Kind: KindTimeout, Stage: id, Err: fmt.Errorf("stage %s timed out after %s", id, timeout)}
}
