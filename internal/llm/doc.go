// Package llm is the single chokepoint for model calls.
//
// A [Client] wraps one backend and adds everything a call needs to survive a
// busy or flaky upstream: a per-attempt timeout, bounded retries with
// exponential backoff and equal jitter, a concurrency semaphore and an
// optional requests-per-minute limiter shared by every caller, a response
// cache, metrics and a trace span per call.
//
// Failures come back typed: [*TimeoutError] when the last attempt ran out of
// time, [*UnavailableError] when transient failures exhausted the attempts,
// and the backend's own error, unchanged, when the failure is not worth
// retrying.
package llm
