package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/dshills/quorum/internal/review"
)

const defaultAPIURL = "https://api.github.com/"

// Options configures a Client. Empty fields fall back to GITHUB_TOKEN and
// GITHUB_API_URL.
type Options struct {
	Token      string
	APIURL     string
	HTTPClient *http.Client
}

// Client talks to the GitHub REST API.
type Client struct {
	gh *gh.Client
}

// NewClient creates a client. A token is required.
func NewClient(opts Options) (*Client, error) {
	token := opts.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN environment variable is not set")
	}
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = os.Getenv("GITHUB_API_URL")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	client := gh.NewClient(httpClient).WithAuthToken(token)
	if apiURL != "" && apiURL != defaultAPIURL {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_API_URL %q: %w", apiURL, err)
		}
		client.BaseURL = u
	}
	return &Client{gh: client}, nil
}

// FetchDiff returns the unified diff of a pull request.
func (c *Client) FetchDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	raw, _, err := c.gh.PullRequests.GetRaw(ctx, owner, repo, number, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return "", wrapError(owner, repo, number, err)
	}
	return raw, nil
}

// PostReview posts report as a COMMENT review on the pull request.
func (c *Client) PostReview(ctx context.Context, owner, repo string, number int, report *review.Report) error {
	_, _, err := c.gh.PullRequests.CreateReview(ctx, owner, repo, number, BuildReview(report))
	if err != nil {
		return wrapError(owner, repo, number, err)
	}
	return nil
}

// BuildReview converts a report into a review request. Comments with a line
// become inline comments on the matching side of the diff; the rest are
// listed in the review body.
func BuildReview(report *review.Report) *gh.PullRequestReviewRequest {
	var inline []*gh.DraftReviewComment
	var general []review.Comment
	for _, c := range report.Comments {
		if c.Line <= 0 || c.Path == "" {
			general = append(general, c)
			continue
		}
		side := "RIGHT"
		if c.Side == review.SideOld {
			side = "LEFT"
		}
		inline = append(inline, &gh.DraftReviewComment{
			Path: gh.Ptr(c.Path),
			Line: gh.Ptr(c.Line),
			Side: gh.Ptr(side),
			Body: gh.Ptr(inlineBody(c)),
		})
	}

	return &gh.PullRequestReviewRequest{
		Body:     gh.Ptr(reviewBody(report, general)),
		Event:    gh.Ptr("COMMENT"),
		Comments: inline,
	}
}

func inlineBody(c review.Comment) string {
	return fmt.Sprintf("**%s** (confidence %.0f%%, %s)\n\n%s", c.Category, c.Confidence*100, c.Agent, c.Body)
}

func reviewBody(report *review.Report, general []review.Comment) string {
	var b strings.Builder
	b.WriteString("## Quorum Code Review\n\n")
	if report.Summary != "" {
		b.WriteString(report.Summary)
		b.WriteString("\n\n")
	}

	counts := report.CategoryCounts()
	b.WriteString("| Category | Count |\n|----------|-------|\n")
	for _, cat := range review.Categories() {
		fmt.Fprintf(&b, "| %s | %d |\n", cat, counts[cat])
	}
	fmt.Fprintf(&b, "\n%d comment(s) across %d file(s).\n", report.TotalComments, report.FilesReviewed)

	if len(general) > 0 {
		b.WriteString("\n### General\n\n")
		for _, c := range general {
			fmt.Fprintf(&b, "- `%s` **%s**: %s\n", c.Path, c.Category, c.Body)
		}
	}
	if report.Tasks.Failed > 0 {
		fmt.Fprintf(&b, "\n_%d of %d review tasks failed; results may be incomplete._\n", report.Tasks.Failed, report.Tasks.Total)
	}
	return b.String()
}

var (
	httpsRemoteRe = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/\s]+?)/?$`)
	sshRemoteRe   = regexp.MustCompile(`^(?:ssh://)?[^@]+@[^:/]+[:/]([^/]+)/([^/\s]+?)/?$`)
)

// DetectRepo reads owner and repo from the origin remote of the repository in
// the working directory.
func DetectRepo(ctx context.Context) (owner, repo string, err error) {
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", "", fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner and repo from an https or ssh remote URL.
func ParseRemoteURL(remote string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(remote), ".git")
	for _, re := range []*regexp.Regexp{httpsRemoteRe, sshRemoteRe} {
		if m := re.FindStringSubmatch(trimmed); len(m) == 3 {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", remote)
}
