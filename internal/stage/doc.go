// Package stage runs pipeline stages.
//
// A Spec names a stage, the function that performs it, a per-attempt timeout
// and a RetryPolicy. Run executes a Spec through a Runner and always yields a
// Result: retryable failures (collaborator errors, timeouts) are re-invoked on
// an exponential schedule, validation failures are returned immediately, and
// only the final attempt is reported.
//
// FanOut runs a set of bound tasks concurrently and waits for every one of
// them, so callers can inspect partial success. Deciding which failures are
// fatal is left to the caller.
package stage
