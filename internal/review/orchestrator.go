package review

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/logging"
	"github.com/dshills/quorum/internal/metrics"
	"github.com/dshills/quorum/internal/tracing"
)

// DefaultRequestTimeout bounds a whole review run.
const DefaultRequestTimeout = 120 * time.Second

// Reviewer reviews one file. Implementations report failure through the
// Outcome rather than by returning an error.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, fc diff.FileChange) Outcome
}

// Options configures an Orchestrator.
type Options struct {
	DedupPrefix int
	// RequestTimeout bounds Run; zero disables the bound.
	RequestTimeout time.Duration
	// Summarizer is optional; nil leaves Report.Summary empty.
	Summarizer *Summarizer

	Version string
	Backend string
	Model   string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// Orchestrator fans files out to reviewers and merges what comes back.
type Orchestrator struct {
	reviewers atomic.Pointer[[]Reviewer]
	opts      Options
	log       *slog.Logger
	tracer    trace.Tracer
}

// New creates an orchestrator over reviewers.
func New(reviewers []Reviewer, opts Options) *Orchestrator {
	if opts.DedupPrefix <= 0 {
		opts.DedupPrefix = DefaultDedupPrefix
	}
	o := &Orchestrator{opts: opts, log: logging.OrNop(opts.Logger), tracer: opts.Tracer}
	if o.tracer == nil {
		o.tracer = tracing.Tracer()
	}
	o.SetReviewers(reviewers)
	return o
}

// SetReviewers replaces the reviewer roster. Runs already in progress keep
// the roster they started with.
func (o *Orchestrator) SetReviewers(reviewers []Reviewer) {
	rs := append([]Reviewer(nil), reviewers...)
	o.reviewers.Store(&rs)
}

// Reviewers returns the current roster.
func (o *Orchestrator) Reviewers() []Reviewer {
	return *o.reviewers.Load()
}

// Run reviews every file with at least one hunk using every reviewer. Each
// agent/file task runs in its own goroutine; a failed or panicking task is
// recorded in the report and never affects its siblings.
//
// If the request timeout expires first, Run returns the report built from the
// tasks that finished, marked Partial, together with a *DeadlineError. If ctx
// itself is cancelled the partial report is returned with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, files []diff.FileChange) (*Report, error) {
	start := time.Now()
	reviewable := diff.Reviewable(files)
	reviewers := o.Reviewers()

	report := &Report{
		ID:            uuid.NewString(),
		Tool:          "quorum",
		Version:       o.opts.Version,
		CreatedAt:     start.UTC(),
		Backend:       o.opts.Backend,
		Model:         o.opts.Model,
		Comments:      []Comment{},
		FilesReviewed: len(reviewable),
	}
	report.Tasks.Total = len(reviewable) * len(reviewers)
	log := o.log.With("run_id", report.ID)

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.opts.RequestTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	runCtx, span := o.tracer.Start(runCtx, "review.run", trace.WithAttributes(
		attribute.String("review.id", report.ID),
		attribute.Int("review.files", len(reviewable)),
		attribute.Int("review.tasks", report.Tasks.Total),
	))
	defer span.End()

	// Buffered so tasks abandoned at the deadline never block on send.
	results := make(chan Outcome, report.Tasks.Total)
	for _, fc := range reviewable {
		for _, r := range reviewers {
			go func() {
				results <- o.runTask(runCtx, r, fc)
			}()
		}
	}

	var collected []Comment
	fold := func(out Outcome) {
		collected = append(collected, out.Comments...)
		if out.Err != nil {
			report.Tasks.Failed++
			report.Failures = append(report.Failures, TaskFailure{
				Agent:  out.Agent,
				Path:   out.Path,
				Reason: out.Err.Error(),
				Class:  Classify(out.Err),
			})
		} else {
			report.Tasks.Succeeded++
		}
		o.opts.Metrics.Task(out.Agent, out.Err == nil)
	}

	completed := 0
	interrupted := false
	for completed < report.Tasks.Total && !interrupted {
		select {
		case out := <-results:
			fold(out)
			completed++
		case <-runCtx.Done():
			interrupted = true
		}
	}
	if interrupted {
		// Keep whatever already finished.
		for drained := false; !drained && completed < report.Tasks.Total; {
			select {
			case out := <-results:
				fold(out)
				completed++
			default:
				drained = true
			}
		}
	}

	report.Comments = Deduplicate(collected, o.opts.DedupPrefix)
	SortComments(report.Comments)
	report.TotalComments = len(report.Comments)
	report.FilesWithComments = distinctPaths(report.Comments)
	for _, c := range report.Comments {
		o.opts.Metrics.Comment(string(c.Category))
	}
	report.Timing.ReviewMs = time.Since(start).Milliseconds()

	var runErr error
	if interrupted && completed < report.Tasks.Total {
		report.Partial = true
		if ctx.Err() != nil {
			runErr = ctx.Err()
		} else {
			runErr = &DeadlineError{Timeout: o.opts.RequestTimeout, Completed: completed, Total: report.Tasks.Total}
		}
	}

	if runErr == nil && o.opts.Summarizer != nil {
		sumStart := time.Now()
		s, err := o.opts.Summarizer.Summarize(runCtx, report.Comments)
		if err != nil {
			log.Warn("summary failed, omitting", "class", Classify(err), "reason", err.Error())
		} else {
			report.Summary = s
		}
		report.Timing.SummaryMs = time.Since(sumStart).Milliseconds()
	}

	report.Timing.TotalMs = time.Since(start).Milliseconds()
	o.opts.Metrics.ReviewDuration(time.Since(start))

	span.SetAttributes(
		attribute.Int("review.comments", report.TotalComments),
		attribute.Int("review.failed_tasks", report.Tasks.Failed),
		attribute.Bool("review.partial", report.Partial),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(Classify(runErr)))
		log.Warn("review interrupted",
			"completed", completed,
			"total", report.Tasks.Total,
			"error", runErr,
		)
	}

	log.Info("review complete",
		"files", report.FilesReviewed,
		"tasks", report.Tasks.Total,
		"failed", report.Tasks.Failed,
		"comments", report.TotalComments,
		"partial", report.Partial,
		"ms", report.Timing.TotalMs,
	)
	return report, runErr
}

func (o *Orchestrator) runTask(ctx context.Context, r Reviewer, fc diff.FileChange) (out Outcome) {
	var pc panics.Catcher
	pc.Try(func() {
		out = r.Review(ctx, fc)
	})
	if rec := pc.Recovered(); rec != nil {
		out = Outcome{Err: rec.AsError()}
	}
	if out.Agent == "" {
		out.Agent = r.Name()
	}
	if out.Path == "" {
		out.Path = fc.Path
	}
	return out
}

func distinctPaths(comments []Comment) int {
	seen := make(map[string]struct{})
	for _, c := range comments {
		seen[c.Path] = struct{}{}
	}
	return len(seen)
}

// IsPartial reports whether err means the report covers only part of the
// work: a request deadline or a cancelled caller.
func IsPartial(err error) bool {
	var deadlineErr *DeadlineError
	return errors.As(err, &deadlineErr) || errors.Is(err, context.Canceled)
}
