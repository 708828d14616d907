package llm

import (
	"fmt"
	"time"
)

// TimeoutError reports that the final attempt of a call exceeded the
// per-attempt timeout.
type TimeoutError struct {
	Backend  string
	Limit    time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model call to %s timed out after %s (%d attempts)", e.Backend, e.Limit, e.Attempts)
}

// UnavailableError reports that every attempt failed transiently.
type UnavailableError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model backend %s unavailable after %d attempts: %v", e.Backend, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
