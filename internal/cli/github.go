package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/github"
	"github.com/dshills/quorum/internal/review"
)

func (a *app) githubCmd() *cobra.Command {
	var (
		flags  reviewFlags
		owner  string
		repo   string
		apiURL string
		post   bool
	)
	cmd := &cobra.Command{
		Use:   "github <pr-number>",
		Short: "Review a GitHub pull request",
		Long:  "Fetch a pull request diff from GitHub, review it, and optionally post the comments as a pull request review.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[0])
			if err != nil || number <= 0 {
				return a.fail(ExitUsageError, fmt.Errorf("invalid PR number %q", args[0]))
			}
			cfg, err := a.loadConfig(flags.overrides(cmd))
			if err != nil {
				return a.failErr(err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if owner == "" || repo == "" {
				detOwner, detRepo, err := github.DetectRepo(ctx)
				if err != nil {
					return a.fail(ExitUsageError, fmt.Errorf("%w; use --owner and --repo", err))
				}
				if owner == "" {
					owner = detOwner
				}
				if repo == "" {
					repo = detRepo
				}
			}

			client, err := github.NewClient(github.Options{APIURL: apiURL})
			if err != nil {
				return a.fail(ExitAuthError, err)
			}

			fmt.Fprintf(a.stderr, "Fetching PR #%d from %s/%s...\n", number, owner, repo)
			text, err := client.FetchDiff(ctx, owner, repo, number)
			if err != nil {
				if github.IsAuth(err) {
					return a.fail(ExitAuthError, err)
				}
				return a.fail(ExitRuntimeError, err)
			}
			if strings.TrimSpace(text) == "" {
				fmt.Fprintln(a.stdout, "Pull request has no diff; nothing to review.")
				return nil
			}

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
				report.Source = review.Source{Mode: "github", Repo: owner + "/" + repo, PR: number}
			}
			a.report(ctx, p, report, runErr, flags.out)
			if report == nil || !post {
				return nil
			}

			fmt.Fprintf(a.stderr, "Posting review with %d comment(s)...\n", report.TotalComments)
			if err := client.PostReview(ctx, owner, repo, number, report); err != nil {
				code := ExitRuntimeError
				if github.IsAuth(err) {
					code = ExitAuthError
				}
				return a.fail(code, fmt.Errorf("posting review: %w", err))
			}
			fmt.Fprintf(a.stderr, "Review posted to %s/%s#%d.\n", owner, repo, number)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner (detected from the origin remote if omitted)")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name (detected from the origin remote if omitted)")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "GitHub API URL (default $GITHUB_API_URL or api.github.com)")
	cmd.Flags().BoolVar(&post, "post", false, "Post the comments as a pull request review")
	return cmd
}
