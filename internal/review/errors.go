package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/providers"
)

// Class is a stable, machine-readable error classification.
type Class string

const (
	ClassInvalidDiff      Class = "invalid_diff"
	ClassFetchFailed      Class = "fetch_failed"
	ClassModelTimeout     Class = "model_timeout"
	ClassModelUnavailable Class = "model_unavailable"
	ClassModelRejected    Class = "model_rejected"
	ClassRequestTimeout   Class = "request_timeout"
	ClassInternal         Class = "internal"
)

// Classed is implemented by errors from other packages that know their own
// class, such as GitHub fetch failures.
type Classed interface {
	error
	Class() Class
}

// DeadlineError reports that the whole review ran past its request timeout.
// The accompanying report is partial.
type DeadlineError struct {
	Timeout   time.Duration
	Completed int
	Total     int
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("review timed out after %s (%d of %d tasks completed)", e.Timeout, e.Completed, e.Total)
}

func (e *DeadlineError) Unwrap() error { return context.DeadlineExceeded }

// Classify maps an error to its class. nil maps to the empty class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	var (
		formatErr   *diff.FormatError
		classed     Classed
		deadlineErr *DeadlineError
		timeoutErr  *llm.TimeoutError
		unavailErr  *llm.UnavailableError
		apiErr      *providers.APIError
	)
	switch {
	case errors.As(err, &formatErr):
		return ClassInvalidDiff
	case errors.As(err, &classed):
		return classed.Class()
	case errors.As(err, &deadlineErr):
		return ClassRequestTimeout
	case errors.As(err, &timeoutErr):
		return ClassModelTimeout
	case errors.As(err, &unavailErr):
		return ClassModelUnavailable
	case errors.As(err, &apiErr):
		return ClassModelRejected
	case errors.Is(err, context.DeadlineExceeded):
		return ClassRequestTimeout
	default:
		return ClassInternal
	}
}
