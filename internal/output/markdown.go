package output

import (
	"io"
	"strings"

	"github.com/dshills/quorum/internal/review"
)

// MarkdownWriter writes a PR-comment-friendly report grouped by category.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	ew.printf("## Quorum Code Review\n\n")
	if report.Summary != "" {
		ew.printf("%s\n\n", report.Summary)
	}

	counts := report.CategoryCounts()
	ew.printf("| Category | Count |\n|----------|-------|\n")
	for _, cat := range review.Categories() {
		ew.printf("| %s %s | %d |\n", mdIcon(cat), titleCase(string(cat)), counts[cat])
	}
	ew.printf("| **Total** | **%d** |\n\n", report.TotalComments)

	if report.Partial {
		ew.printf("> **Partial report:** the review timed out before every task finished.\n\n")
	}
	if n := len(report.Failures); n > 0 {
		ew.printf("> %d of %d review task(s) failed.\n\n", n, report.Tasks.Total)
	}

	if report.TotalComments == 0 {
		ew.println("No issues found. :white_check_mark:")
		return ew.err
	}

	groups := groupByCategory(report.Comments)
	for _, cat := range review.Categories() {
		comments := groups[cat]
		if len(comments) == 0 {
			continue
		}
		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n", mdIcon(cat), titleCase(string(cat)), len(comments))
		for _, c := range comments {
			ew.printf("**`%s`** | confidence %s | %s\n\n", location(c), percent(c.Confidence), c.Agent)
			ew.printf("%s\n\n---\n\n", quoteBlock(c.Body))
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("*Reviewed %d file(s) in %dms*\n", report.FilesReviewed, report.Timing.TotalMs)
	return ew.err
}

func mdIcon(c review.Category) string {
	switch c {
	case review.CategorySecurity:
		return ":red_circle:"
	case review.CategoryLogic:
		return ":orange_circle:"
	case review.CategoryPerformance:
		return ":yellow_circle:"
	default:
		return ":large_blue_circle:"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func quoteBlock(s string) string {
	return "> " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n> ")
}
