package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/panics"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/logging"
	"github.com/dshills/quorum/internal/metrics"
	"github.com/dshills/quorum/internal/redact"
	"github.com/dshills/quorum/internal/review"
)

// Caller makes one model call. *llm.Client implements it.
type Caller interface {
	Call(ctx context.Context, req llm.Request) (string, error)
}

// Options configures an Agent. Zero values take defaults.
type Options struct {
	Temperature  float64
	MaxTokens    int
	SnippetLines int

	RedactSecrets bool
	RedactPaths   []string
	Rules         *Rules

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Agent reviews files from the perspective of one Role.
type Agent struct {
	role   Role
	caller Caller
	opts   Options
	system string
	log    *slog.Logger
}

// New creates an agent for role that calls the model through caller.
func New(role Role, caller Caller, opts Options) *Agent {
	if opts.SnippetLines <= 0 {
		opts.SnippetLines = DefaultSnippetLines
	}
	return &Agent{
		role:   role,
		caller: caller,
		opts:   opts,
		system: systemPrompt(role, opts.Rules),
		log:    logging.OrNop(opts.Logger).With("agent", role.Name()),
	}
}

// NewSet creates one agent per role sharing caller and opts.
func NewSet(roles []Role, caller Caller, opts Options) []review.Reviewer {
	out := make([]review.Reviewer, len(roles))
	for i, r := range roles {
		out[i] = New(r, caller, opts)
	}
	return out
}

// Name returns the role name.
func (a *Agent) Name() string { return a.role.Name() }

// Role returns the agent's role.
func (a *Agent) Role() Role { return a.role }

// SystemPrompt returns the system text sent with every call.
func (a *Agent) SystemPrompt() string { return a.system }

// Review reviews every hunk of fc. A failed hunk contributes no comments and
// its error is joined into the outcome's Err; other hunks are unaffected.
func (a *Agent) Review(ctx context.Context, fc diff.FileChange) review.Outcome {
	out := review.Outcome{Agent: a.Name(), Path: fc.Path}
	log := a.log.With("path", fc.Path)

	if redact.MatchPath(fc.Path, a.opts.RedactPaths) {
		log.Debug("skipping file excluded by redaction policy")
		return out
	}

	var errs []error
	for i, h := range fc.Hunks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		comments, err := a.reviewHunk(ctx, fc.Path, h)
		if err != nil {
			log.Warn("hunk review failed",
				"hunk", h.Header,
				"class", review.Classify(err),
				"reason", err.Error(),
			)
			errs = append(errs, fmt.Errorf("hunk %d %s: %w", i+1, h.Header, err))
			continue
		}
		out.Comments = append(out.Comments, comments...)
	}
	out.Err = errors.Join(errs...)
	log.Debug("file reviewed", "comments", len(out.Comments), "failed_hunks", len(errs))
	return out
}

func (a *Agent) reviewHunk(ctx context.Context, path string, h diff.Hunk) (comments []review.Comment, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		comments, err = a.reviewHunkUnsafe(ctx, path, h)
	})
	if r := pc.Recovered(); r != nil {
		return nil, r.AsError()
	}
	return comments, err
}

func (a *Agent) reviewHunkUnsafe(ctx context.Context, path string, h diff.Hunk) ([]review.Comment, error) {
	snippet := Snippet(h, a.opts.SnippetLines)
	if a.opts.RedactSecrets {
		var hits []redact.Hit
		snippet, hits = redact.Scan(snippet)
		for _, h := range hits {
			a.log.Debug("masked secrets", "path", path, "rule", h.Rule, "count", h.Count)
		}
	}

	raw, err := a.caller.Call(ctx, llm.Request{
		System:      a.system,
		User:        userPrompt(path, snippet, a.role),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	res := Parse(raw, a.role.Category)
	a.opts.Metrics.ParseResult(res.Kind.String())
	if res.Kind == Unparseable {
		a.log.Warn("unparseable model response",
			"path", path,
			"hunk", h.Header,
			"raw", logging.Truncate(strings.TrimSpace(raw), 200),
		)
		return nil, nil
	}

	provenance := review.ProvenanceStructured
	if res.Kind == Heuristic {
		provenance = review.ProvenanceHeuristic
	}

	var comments []review.Comment
	for _, f := range res.Findings {
		line, side, ok := MapLine(h, f.Line, a.opts.SnippetLines, f.Side)
		if !ok {
			a.log.Debug("dropping finding outside hunk window", "path", path, "hunk", h.Header, "line", f.Line)
			continue
		}
		comments = append(comments, review.Comment{
			Path:       path,
			Line:       line,
			Side:       side,
			Category:   f.Category,
			Confidence: f.Confidence,
			Body:       f.Body,
			Agent:      a.Name(),
			Provenance: provenance,
		})
	}
	return comments, nil
}

func systemPrompt(role Role, rules *Rules) string {
	var b strings.Builder
	b.WriteString(role.Instruction)
	b.WriteString("\n")
	b.WriteString(rules.PromptSection())
	fmt.Fprintf(&b, responseFormat, role.Category)
	return b.String()
}

func userPrompt(path, snippet string, role Role) string {
	return fmt.Sprintf("File: %s\n\nCode changes:\n```\n%s```\n\nReview this code change for %s issues.", path, snippet, role.Category)
}
