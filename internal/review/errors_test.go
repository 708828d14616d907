package review

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/providers"
)

type fetchLike struct{}

func (fetchLike) Error() string { return "fetch failed" }
func (fetchLike) Class() Class  { return ClassFetchFailed }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ""},
		{"format", &diff.FormatError{Msg: "empty diff"}, ClassInvalidDiff},
		{"wrapped format", fmt.Errorf("parse: %w", &diff.FormatError{Msg: "x"}), ClassInvalidDiff},
		{"classed", fmt.Errorf("github: %w", fetchLike{}), ClassFetchFailed},
		{"deadline", &DeadlineError{}, ClassRequestTimeout},
		{"model timeout", &llm.TimeoutError{}, ClassModelTimeout},
		{"unavailable", &llm.UnavailableError{Err: errors.New("503")}, ClassModelUnavailable},
		{"rejected", &providers.APIError{StatusCode: 400}, ClassModelRejected},
		{"joined hunks", errors.Join(errors.New("a"), &llm.TimeoutError{}), ClassModelTimeout},
		{"context deadline", context.DeadlineExceeded, ClassRequestTimeout},
		{"other", errors.New("boom"), ClassInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeadlineError(t *testing.T) {
	err := &DeadlineError{Completed: 3, Total: 8}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("DeadlineError should unwrap to context.DeadlineExceeded")
	}
	if !IsPartial(err) || !IsPartial(context.Canceled) || IsPartial(errors.New("x")) {
		t.Error("IsPartial misclassified")
	}
}
