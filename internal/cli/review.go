package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/config"
	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/gitctx"
	"github.com/dshills/quorum/internal/review"
)

// reviewFlags are shared by every command that runs a review.
type reviewFlags struct {
	provider      string
	model         string
	format        string
	out           string
	failOn        string
	minConfidence float64
	agents        string
	rules         string
	include       string
	exclude       string
	contextLines  int
	maxDiffBytes  int
	timeout       time.Duration
	noRedact      bool
	noSummary     bool
}

func (f *reviewFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.provider, "provider", "", "Model provider (anthropic, openai, gemini, ollama, lmstudio)")
	fs.StringVar(&f.model, "model", "", "Model name")
	fs.StringVar(&f.format, "format", "", "Output format (text, json, markdown, sarif)")
	fs.StringVar(&f.out, "out", "", "Output file path (default: stdout)")
	fs.StringVar(&f.failOn, "fail-on", "", "Exit 1 when comments fall in these categories (none, any, or a comma list)")
	fs.Float64Var(&f.minConfidence, "min-confidence", 0, "Drop comments below this confidence")
	fs.StringVar(&f.agents, "agents", "", "Agents to run (comma-separated)")
	fs.StringVar(&f.rules, "rules", "", "Repository rules file (JSON or YAML)")
	fs.StringVar(&f.include, "include", "", "Include path globs (comma-separated)")
	fs.StringVar(&f.exclude, "exclude", "", "Exclude path globs (comma-separated)")
	fs.IntVar(&f.contextLines, "context-lines", 0, "Context lines in collected diffs")
	fs.IntVar(&f.maxDiffBytes, "max-diff-bytes", 0, "Diff byte budget")
	fs.DurationVar(&f.timeout, "timeout", 0, "Bound on the whole review")
	fs.BoolVar(&f.noRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	fs.BoolVar(&f.noSummary, "no-summary", false, "Skip the summary call")
}

// overrides turns the flags the user set into config overrides.
func (f *reviewFlags) overrides(cmd *cobra.Command) map[string]string {
	m := make(map[string]string)
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			m[key] = value
		}
	}
	set("provider", "provider", f.provider)
	set("model", "model", f.model)
	set("format", "format", f.format)
	set("fail-on", "fail_on", f.failOn)
	set("min-confidence", "min_confidence", strconv.FormatFloat(f.minConfidence, 'f', -1, 64))
	set("agents", "agents", f.agents)
	set("rules", "rules_file", f.rules)
	set("include", "diff.include", f.include)
	set("context-lines", "diff.context_lines", strconv.Itoa(f.contextLines))
	set("max-diff-bytes", "diff.max_diff_bytes", strconv.Itoa(f.maxDiffBytes))
	set("timeout", "review.request_timeout", f.timeout.String())
	if f.noRedact {
		m["privacy.redact_secrets"] = "false"
	}
	if f.noSummary {
		m["review.summary"] = "false"
	}
	return m
}

func (f *reviewFlags) diffOptions(cmd *cobra.Command, opts gitctx.Options) gitctx.Options {
	if cmd.Flags().Changed("exclude") {
		opts.Exclude = append(opts.Exclude, splitComma(f.exclude)...)
	}
	return opts
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// source collects the diff for a review command.
type source func(ctx context.Context, opts gitctx.Options) (gitctx.Result, error)

func (a *app) reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review local changes",
		Long:  "Review local changes with every configured agent. Use a subcommand to choose what to review.",
	}

	var mergeBase bool
	var snippetPath, snippetBase string

	unstaged := a.reviewSubcommand("unstaged", "Review unstaged changes (working tree vs index)", cobra.NoArgs,
		func(_ []string) source { return gitctx.Unstaged })
	staged := a.reviewSubcommand("staged", "Review staged changes (index vs HEAD)", cobra.NoArgs,
		func(_ []string) source { return gitctx.Staged })
	commit := a.reviewSubcommand("commit <sha>", "Review the changes introduced by a commit", cobra.ExactArgs(1),
		func(args []string) source {
			return func(ctx context.Context, opts gitctx.Options) (gitctx.Result, error) {
				return gitctx.Commit(ctx, args[0], opts)
			}
		})
	rng := a.reviewSubcommand("range <a..b>", "Review a revision range (e.g. origin/main..HEAD)", cobra.ExactArgs(1),
		func(args []string) source {
			return func(ctx context.Context, opts gitctx.Options) (gitctx.Result, error) {
				return gitctx.Range(ctx, args[0], mergeBase, opts)
			}
		})
	rng.Flags().BoolVar(&mergeBase, "merge-base", true, "Diff from the merge base of the two revisions")
	file := a.reviewSubcommand("file <path|->", "Review a unified diff read from a file or stdin", cobra.ExactArgs(1),
		func(args []string) source {
			return func(_ context.Context, opts gitctx.Options) (gitctx.Result, error) {
				return gitctx.File(args[0], a.stdin, opts)
			}
		})
	snippet := a.reviewSubcommand("snippet", "Review code read from stdin", cobra.NoArgs,
		func(_ []string) source {
			return func(ctx context.Context, _ gitctx.Options) (gitctx.Result, error) {
				content, err := io.ReadAll(a.stdin)
				if err != nil {
					return gitctx.Result{}, fmt.Errorf("reading stdin: %w", err)
				}
				var base string
				if snippetBase != "" {
					data, err := os.ReadFile(snippetBase)
					if err != nil {
						return gitctx.Result{}, fmt.Errorf("reading base file: %w", err)
					}
					base = string(data)
				}
				return gitctx.Snippet(ctx, string(content), snippetPath, base)
			}
		})
	snippet.Flags().StringVar(&snippetPath, "path", "", "File path to report comments against")
	snippet.Flags().StringVar(&snippetBase, "base", "", "Base file to diff the snippet against")

	cmd.AddCommand(unstaged, staged, commit, rng, file, snippet)
	return cmd
}

func (a *app) reviewSubcommand(use, short string, args cobra.PositionalArgs, src func(args []string) source) *cobra.Command {
	var flags reviewFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := a.loadConfig(flags.overrides(cmd))
		if err != nil {
			return a.failErr(err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := flags.diffOptions(cmd, gitctx.Options{
			ContextLines: cfg.Diff.ContextLines,
			MaxDiffBytes: cfg.Diff.MaxDiffBytes,
			Include:      cfg.Diff.Include,
			Exclude:      cfg.Diff.Exclude,
		})
		res, err := src(args)(ctx, opts)
		if err != nil {
			var formatErr *diff.FormatError
			if errors.As(err, &formatErr) {
				return a.fail(ExitUsageError, err)
			}
			return a.fail(ExitRuntimeError, err)
		}
		if res.Truncated() {
			fmt.Fprintf(a.stderr, "Warning: diff exceeds %d bytes; omitted %d file(s): %s\n",
				cfg.Diff.MaxDiffBytes, len(res.Omitted), strings.Join(res.Omitted, ", "))
		}
		if strings.TrimSpace(res.Diff) == "" {
			fmt.Fprintln(a.stdout, "No changes to review.")
			return nil
		}

		return a.runReview(ctx, cfg, res.Diff, review.Source{
			Mode:   res.Mode,
			Range:  res.Range,
			Repo:   res.Repo.Root,
			Branch: res.Repo.Branch,
			Head:   res.Repo.Head,
		}, flags.out)
	}
	flags.register(cmd)
	return cmd
}

// runReview parses text, runs the pipeline and reports the result.
func (a *app) runReview(ctx context.Context, cfg config.Config, text string, src review.Source, out string) error {
	files, err := diff.Parse(text)
	if err != nil {
		return a.fail(ExitUsageError, err)
	}

	p, err := a.newPipeline(ctx, cfg)
	if err != nil {
		return a.failErr(err)
	}
	defer p.Close()

	report, runErr := p.orch.Run(ctx, files)
	if report != nil {
		report.Source = src
	}
	a.report(ctx, p, report, runErr, out)
	return nil
}

